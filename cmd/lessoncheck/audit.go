package main

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/snarg/listenlab/internal/database"
	"github.com/snarg/listenlab/internal/karaoke"
)

type auditResult struct {
	id      string
	stored  int
	found   []karaoke.Issue
	changed bool
}

// auditRow re-validates one archived transcript against its stored count.
func auditRow(row *database.LessonRow) auditResult {
	found := karaoke.Validate(row.Tokens)
	return auditResult{
		id:      row.ID,
		stored:  row.IssueCount,
		found:   found,
		changed: len(found) != row.IssueCount,
	}
}

func auditLessons(ctx context.Context, db *database.DB, dryRun bool) error {
	var scanned, withIssues int
	var stale []auditResult

	err := db.ScanLessons(ctx, func(row *database.LessonRow) error {
		scanned++
		res := auditRow(row)
		if len(res.found) > 0 {
			withIssues++
		}
		if res.changed {
			stale = append(stale, res)
		}
		return nil
	})
	if err != nil {
		return err
	}

	fmt.Printf("Scanned %d lessons, %d with timing issues, %d with stale counts\n",
		scanned, withIssues, len(stale))
	if len(stale) == 0 {
		return nil
	}

	if dryRun {
		fmt.Println("Dry run, no changes made. Run with 'audit apply' to update counts.")
		for i, r := range stale {
			if i >= 10 {
				fmt.Printf("  ... and %d more\n", len(stale)-10)
				break
			}
			first := ""
			if len(r.found) > 0 {
				first = " (" + r.found[0].String() + ")"
			}
			fmt.Printf("  %s: stored %d, found %d%s\n", r.id, r.stored, len(r.found), first)
		}
		return nil
	}

	for _, r := range stale {
		if err := db.SetIssueCount(ctx, r.id, len(r.found)); err != nil {
			return fmt.Errorf("update %s: %w", r.id, err)
		}
	}
	fmt.Printf("Updated %d lessons\n", len(stale))
	return nil
}

func purgeLessons(ctx context.Context, db *database.DB, days int, dryRun bool) error {
	cutoff := time.Now().AddDate(0, 0, -days)

	if dryRun {
		var n int64
		if err := db.Pool.QueryRow(ctx,
			`SELECT count(*) FROM lessons WHERE created_at < $1`, cutoff).Scan(&n); err != nil {
			return err
		}
		fmt.Printf("%d lessons created before %s would be deleted. Run with 'purge %d apply' to delete.\n",
			n, cutoff.Format(time.DateOnly), days)
		return nil
	}

	n, err := db.PurgeLessons(ctx, cutoff)
	if err != nil {
		return err
	}
	fmt.Printf("Deleted %d lessons created before %s\n", n, cutoff.Format(time.DateOnly))
	return nil
}

func parseDays(s string) (int, error) {
	days, err := strconv.Atoi(s)
	if err != nil || days < 1 {
		return 0, fmt.Errorf("DAYS must be a positive integer, got %q", s)
	}
	return days, nil
}
