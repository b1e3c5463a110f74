package main

import (
	"context"
	"log"
	"time"

	"classroom/backend/internal/directory"
	"classroom/backend/internal/enrollment"
	"classroom/backend/internal/gradebook"
	"classroom/backend/internal/shared"
	"classroom/backend/internal/store"
	"classroom/backend/internal/store/backends"
)

// Common Credentials
const CommonPassword = "password"

// UserSeed describes one account to create
type UserSeed struct {
	Email string
	Name  string
	Role  string
}

// ClassSeed describes a class, its teacher and who joins it
type ClassSeed struct {
	Name        string
	Subject     string
	MaxStudents int
	Teacher     string   // email
	Students    []string // emails
	Assignments []AssignmentSeed
}

// AssignmentSeed describes an assignment and the points each student earned.
// Students missing from Points stay pending.
type AssignmentSeed struct {
	Title    string
	Possible float64
	DueIn    time.Duration
	Points   map[string]float64 // email -> points
	Returned bool
}

var users = []UserSeed{
	{"admin@example.com", "Super Admin", shared.RoleAdmin},
	{"teacher@example.com", "Ms. Valerie Frizzle", shared.RoleTeacher},
	{"teacher2@example.com", "Mr. John Keating", shared.RoleTeacher},
	{"student@example.com", "John Student", shared.RoleStudent},
	{"student2@example.com", "Alice Wonderland", shared.RoleStudent},
	{"student3@example.com", "Bob Builder", shared.RoleStudent},
}

var classes = []ClassSeed{
	{
		Name: "Biology 101", Subject: "Science", MaxStudents: 30,
		Teacher:  "teacher@example.com",
		Students: []string{"student@example.com", "student2@example.com", "student3@example.com"},
		Assignments: []AssignmentSeed{
			{"Cell Structure Lab", 50, -72 * time.Hour, map[string]float64{"student@example.com": 46, "student2@example.com": 41, "student3@example.com": 33}, true},
			{"Photosynthesis Quiz", 20, -24 * time.Hour, map[string]float64{"student@example.com": 18, "student2@example.com": 15}, false},
			{"Ecosystem Essay", 100, 7 * 24 * time.Hour, nil, false},
		},
	},
	{
		Name: "English Literature", Subject: "Humanities", MaxStudents: 2,
		Teacher:  "teacher2@example.com",
		Students: []string{"student@example.com", "student3@example.com"},
		Assignments: []AssignmentSeed{
			{"Poetry Analysis", 40, -48 * time.Hour, map[string]float64{"student@example.com": 35, "student3@example.com": 28}, true},
		},
	},
}

func main() {
	log.Println("Starting Classroom Seeder...")

	if err := shared.LoadEnv(".env"); err != nil {
		log.Println("Warning: .env file not found, using system environment variables")
	}

	cfg, err := shared.LoadServiceConfig("seeder")
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if cfg.StoreBackend == shared.StoreMemory {
		log.Fatalf("Seeding the in-memory store is pointless; set STORE_BACKEND")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	ds, err := backends.Open(ctx, cfg)
	if err != nil {
		log.Fatalf("Failed to open store: %v", err)
	}
	defer ds.Close(context.Background())

	// Clear all collections for a clean start
	for _, c := range []string{shared.CollectionUsers, shared.CollectionSessions, shared.CollectionClasses, shared.CollectionAssignments, shared.CollectionGrades} {
		n, err := ds.DeleteMany(ctx, c, store.Filter{})
		if err != nil {
			log.Fatalf("Failed to clear %s: %v", c, err)
		}
		log.Printf("Cleared %d documents from %s", n, c)
	}

	records := store.NewRecords(ds)
	dir := directory.NewJWTDirectory(records, cfg.Security)
	classService := enrollment.NewService(records, enrollment.NewGenerator(), nil)
	gradeService := gradebook.NewService(records, nil)

	// --- 1. Seed Users ---
	principals := seedUsers(ctx, dir)

	// --- 2. Seed Classes, Rosters, Assignments and Grades ---
	for _, seed := range classes {
		seedClass(ctx, classService, gradeService, principals, seed)
	}

	log.Println("All data seeding completed successfully.")
}

// ============================================================================
// SEEDING FUNCTIONS
// ============================================================================

func seedUsers(ctx context.Context, dir *directory.JWTDirectory) map[string]shared.Principal {
	log.Println("--- Seeding Users ---")
	principals := make(map[string]shared.Principal, len(users))
	for _, u := range users {
		user, err := dir.CreateUser(ctx, u.Email, CommonPassword, u.Name, u.Role)
		if err != nil {
			log.Fatalf("Error seeding user %s: %v", u.Email, err)
		}
		principals[u.Email] = shared.Principal{ID: user.ID, Role: user.Role, Name: user.Name, Email: user.Email}
		log.Printf("Seeded %s: %s (%s)", u.Role, u.Email, user.ID)
	}
	return principals
}

func seedClass(ctx context.Context, classes *enrollment.Service, grades *gradebook.Service, principals map[string]shared.Principal, seed ClassSeed) {
	teacher := principals[seed.Teacher]
	class, err := classes.CreateClass(ctx, teacher, enrollment.NewClass{
		Name:        seed.Name,
		Subject:     seed.Subject,
		MaxStudents: seed.MaxStudents,
	})
	if err != nil {
		log.Fatalf("Error seeding class %s: %v", seed.Name, err)
	}
	log.Printf("Seeded Class: %s (%s), code %s", class.Name, class.ID, class.EnrollmentCode)

	for _, email := range seed.Students {
		if _, err := classes.JoinByCode(ctx, principals[email], class.EnrollmentCode); err != nil {
			log.Fatalf("Error enrolling %s in %s: %v", email, class.ID, err)
		}
	}

	now := time.Now()
	for _, as := range seed.Assignments {
		a, err := grades.PublishAssignment(ctx, teacher, gradebook.NewAssignment{
			ClassID:        class.ID,
			Title:          as.Title,
			PointsPossible: as.Possible,
			DueAt:          now.Add(as.DueIn),
		})
		if err != nil {
			log.Fatalf("Error seeding assignment %s: %v", as.Title, err)
		}

		for email, points := range as.Points {
			student := principals[email]
			if _, err := grades.RecordSubmission(ctx, student, a.ID); err != nil {
				log.Fatalf("Error recording submission of %s: %v", email, err)
			}
			if _, err := grades.CommitGrade(ctx, teacher, shared.GradeRecordID(a.ID, student.ID), points, ""); err != nil {
				log.Fatalf("Error grading %s on %s: %v", email, as.Title, err)
			}
		}
		if as.Returned {
			returned, err := grades.ReturnGrades(ctx, teacher, a.ID)
			if err != nil {
				log.Fatalf("Error returning %s: %v", as.Title, err)
			}
			log.Printf("Returned %d grades for %s", len(returned), as.Title)
		}
		log.Printf("Seeded Assignment: %s (%s)", a.Title, a.ID)
	}
}
