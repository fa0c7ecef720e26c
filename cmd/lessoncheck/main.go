// Command lessoncheck inspects and maintains the lesson archive.
//
//	lessoncheck                  archive summary
//	lessoncheck audit [apply]    re-validate stored word timings
//	lessoncheck purge DAYS [apply]  delete lessons older than DAYS
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"github.com/snarg/listenlab/internal/database"
)

func main() {
	_ = godotenv.Load()
	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()

	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		log.Fatal().Msg("DATABASE_URL is not set")
	}

	ctx := context.Background()
	db, err := database.Connect(ctx, dsn, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer db.Close()

	args := os.Args[1:]
	apply := len(args) > 0 && args[len(args)-1] == "apply"

	switch {
	case len(args) > 0 && args[0] == "audit":
		if err := auditLessons(ctx, db, !apply); err != nil {
			log.Error().Err(err).Msg("audit failed")
			os.Exit(1)
		}
	case len(args) > 0 && args[0] == "purge":
		if len(args) < 2 {
			fmt.Fprintln(os.Stderr, "usage: lessoncheck purge DAYS [apply]")
			os.Exit(2)
		}
		days, err := parseDays(args[1])
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(2)
		}
		if err := purgeLessons(ctx, db, days, !apply); err != nil {
			log.Error().Err(err).Msg("purge failed")
			os.Exit(1)
		}
	default:
		summary(ctx, db)
	}
}

func summary(ctx context.Context, db *database.DB) {
	var total, words, issues int64
	db.Pool.QueryRow(ctx, `
		SELECT count(*), COALESCE(sum(word_count), 0), COALESCE(sum(issue_count), 0)
		FROM lessons`).Scan(&total, &words, &issues)

	fmt.Printf("Archived lessons: %d\n", total)
	fmt.Printf("Words:            %d\n", words)
	fmt.Printf("Timing issues:    %d\n", issues)

	rows, err := db.Pool.Query(ctx, `
		SELECT language, count(*) FROM lessons GROUP BY language ORDER BY count(*) DESC`)
	if err != nil {
		fmt.Printf("Error reading languages: %v\n", err)
		return
	}
	defer rows.Close()

	fmt.Println()
	fmt.Println("Language    Lessons")
	fmt.Println("───────────────────")
	for rows.Next() {
		var lang string
		var n int64
		rows.Scan(&lang, &n)
		fmt.Printf("%-11s %d\n", lang, n)
	}
}
