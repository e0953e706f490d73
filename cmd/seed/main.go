// Command seed loads sample patients into a development database.
// Running it twice is safe: existing weeks are left alone.
package main

import (
	"context"
	"flag"
	"time"
	_ "time/tzdata"

	"tcmclinic/internal/config"
	"tcmclinic/internal/database"
	"tcmclinic/internal/lineimport"
	"tcmclinic/internal/logging"
	"tcmclinic/internal/models"
	"tcmclinic/internal/services"

	"github.com/joho/godotenv"
)

type samplePatient struct {
	name       string
	lineUserID string
	weeks      [][2][]string // per week: symptoms, syndromes
}

var samples = []samplePatient{
	{
		name:       "王小明",
		lineUserID: "U0000000000000000000000000000seed1",
		weeks: [][2][]string{
			{{"頭痛", "失眠"}, {"肝陽上亢"}},
			{{"失眠", "眩暈"}, {}},
			{{"口乾"}, {"陰虛"}},
		},
	},
	{
		name: "陳美玲",
		weeks: [][2][]string{
			{{"經痛", "手腳冰冷"}, {"氣血兩虛"}},
			{{"疲倦"}, {"氣虛"}},
		},
	},
	{
		name:       "林志強",
		lineUserID: "U0000000000000000000000000000seed3",
		weeks: [][2][]string{
			{{"胃脹", "食慾不振"}, {"脾胃虛弱"}},
		},
	},
}

func main() {
	force := flag.Bool("force", false, "seed even when ENVIRONMENT is production")
	flag.Parse()

	_ = godotenv.Load()
	logging.Init()
	log := logging.L()

	cfg := config.Load()
	if cfg.IsProduction() && !*force {
		log.Fatal("❌ Refusing to seed a production database without -force")
	}
	if cfg.MongoURI == "" {
		log.Fatal("❌ MONGODB_URI is required")
	}
	loc := cfg.Location()

	db, err := database.NewMongoDB(cfg.MongoURI, cfg.MongoDB)
	if err != nil {
		log.Fatalf("❌ Failed to connect to MongoDB: %v", err)
	}
	defer db.Close(context.Background())

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	if err := db.Initialize(ctx); err != nil {
		log.Fatalf("❌ Failed to initialize indexes: %v", err)
	}

	resolver := services.NewMergeResolver(services.NewMongoPatientStore(db), nil)
	now := time.Now().In(loc)
	thisWeek := lineimport.WeekStart(now)

	for _, s := range samples {
		patient := buildPatient(s, thisWeek, now)
		result, err := resolver.Resolve(ctx, services.MergeKey{ExternalID: s.lineUserID, Name: s.name}, patient)
		if err != nil {
			log.Fatalf("❌ Failed to seed %s: %v", s.name, err)
		}
		if result.Upserted {
			log.Infof("🌱 Inserted %s (%s) with %d weeks", s.name, result.PatientID, len(patient.HistoryRecords))
		} else {
			log.Infof("🔁 %s already present, appended %d weeks", s.name, result.Appended)
		}
	}
	log.Infof("✅ Seeded %d patients into %s", len(samples), db.Name())
}

// buildPatient lays the sample weeks out backwards from thisWeek, newest first
func buildPatient(s samplePatient, thisWeek, now time.Time) *models.Patient {
	records := make([]models.HistoryRecord, 0, len(s.weeks))
	for i, week := range s.weeks {
		records = append(records, models.HistoryRecord{
			VisitDate: thisWeek.AddDate(0, 0, -7*i),
			Symptoms:  week[0],
			Syndromes: week[1],
			CreatedAt: now,
			UpdatedAt: now,
		})
	}
	return &models.Patient{
		Name:                s.name,
		ExternalMessagingID: s.lineUserID,
		HistoryRecords:      records,
		CreatedAt:           now,
		UpdatedAt:           now,
	}
}
