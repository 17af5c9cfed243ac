package main

import (
	"context"
	"errors"
	"log"
	"time"

	"attendance/internal/account"
	"attendance/internal/config"
	"attendance/internal/schedule"
	"attendance/internal/store"
)

// Seed loads a small demo data set: one lecturer, a handful of students,
// two courses with modules, and lectures spread around the current time so
// the code endpoint has something to issue against. Users, courses and
// enrollments are idempotent; each run adds a fresh batch of lectures.
func main() {
	cfg := config.Load()
	ctx := context.Background()

	db, err := store.NewDB(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("db connect failed: %v", err)
	}
	defer db.Close()

	if err := db.Migrate(ctx); err != nil {
		log.Fatalf("migrate failed: %v", err)
	}

	users := account.NewRepository(db.Client)
	accounts := account.NewService(users, cfg.JWTIssuer, cfg.JWTSigningKey, cfg.AccessTTL)
	sched := schedule.NewRepository(db.Client)

	type person struct {
		id, username string
		staff        bool
	}
	people := []person{
		{"st0001lec", "dr.hart", true},
		{"sc0001abc", "alice", false},
		{"sc0002def", "bob", false},
		{"sc0003ghi", "carol", false},
		{"sc0004jkl", "dave", false},
	}
	for _, p := range people {
		if _, _, err := accounts.Register(ctx, p.id, p.username, "password123", p.staff); err != nil {
			if errors.Is(err, account.ErrExists) {
				continue
			}
			log.Fatalf("create user %s: %v", p.username, err)
		}
	}

	courses := map[schedule.Course][]string{
		{Code: "COMP3711", Name: "Computer Science Year 3"}: {"Machine Learning", "Distributed Systems"},
		{Code: "COMP1711", Name: "Computer Science Year 1"}: {"Programming Fundamentals"},
	}

	now := time.Now().UTC()
	room := "Roger Stevens LT 25"

	for course, modules := range courses {
		if err := sched.CreateCourse(ctx, course); err != nil {
			log.Fatalf("create course %s: %v", course.Code, err)
		}
		for _, p := range people {
			if p.staff {
				continue
			}
			if err := sched.Enroll(ctx, p.id, course.Code); err != nil {
				log.Fatalf("enroll %s in %s: %v", p.id, course.Code, err)
			}
		}
		for i, name := range modules {
			moduleID, err := sched.CreateModule(ctx, course.Code, name)
			if err != nil {
				log.Fatalf("create module %s: %v", name, err)
			}
			// One lecture live right now, plus a week of past mornings for
			// streak history and one tomorrow.
			windows := []time.Time{now.Add(-10 * time.Minute)}
			for d := 1; d <= 7; d++ {
				windows = append(windows, now.AddDate(0, 0, -d).Add(time.Duration(i)*time.Hour))
			}
			windows = append(windows, now.AddDate(0, 0, 1))
			for _, start := range windows {
				if _, err := sched.CreateLecture(ctx, moduleID, "st0001lec", &room, start, start.Add(50*time.Minute)); err != nil {
					log.Fatalf("create lecture for %s: %v", name, err)
				}
			}
		}
	}

	log.Println("seed complete")
}
