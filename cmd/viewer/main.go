// Command viewer inspects the ledger file and the audit trail offline,
// without touching the live bot. BadgerDB is opened read-only with the lock
// guard bypassed so it works while the bot is running.
package main

import (
	"fmt"
	"log"
	"os"
	"time"

	"github.com/Netflix/go-env"
	"github.com/dgraph-io/badger/v4"
	"github.com/gookit/color"
	"github.com/joho/godotenv"
	"github.com/mama165/sdk-go/logs"
	"github.com/olekukonko/tablewriter"

	"capital-bot/calc"
	"capital-bot/repositories"
)

type Config struct {
	LogLevel       string `env:"LOG_LEVEL,default=WARN"`
	LedgerFilepath string `env:"LEDGER_FILEPATH,default=./data/capital_data.json"`
	BadgerFilepath string `env:"BADGER_FILEPATH,default=./data/audit"`
	HistoryLimit   int    `env:"HISTORY_LIMIT,default=10"`
	AuditLimit     int    `env:"AUDIT_LIMIT,default=20"`
}

func main() {
	// 1. Load config
	_ = godotenv.Load()
	var config Config
	if _, err := env.UnmarshalFromEnviron(&config); err != nil {
		log.Fatalf("Config error: %v", err)
	}

	logger := logs.GetLoggerFromString(config.LogLevel)
	ledgerRepository := repositories.NewLedgerRepository(config.LedgerFilepath, config.HistoryLimit, logger)

	// 2. Ledgers
	groupIDs, err := ledgerRepository.GroupIDs()
	if err != nil {
		log.Fatalf("Failed to list groups: %v", err)
	}
	if len(groupIDs) == 0 {
		color.Yellow.Println("No group ledgers found")
	}

	for _, groupID := range groupIDs {
		ledger, err := ledgerRepository.Get(groupID)
		if err != nil {
			color.Red.Printf("Group %s: %v\n", groupID, err)
			continue
		}

		color.Green.Printf("\n📊 Group %s\n", groupID)
		fmt.Printf("Balance: %s | Operations: %d | Created: %s\n",
			calc.FormatNumber(ledger.Capital), ledger.Statistics.TotalOperations, ledger.Statistics.CreatedDate.Format("2006-01-02"))

		history, err := ledgerRepository.History(groupID, config.HistoryLimit)
		if err != nil {
			color.Red.Printf("History %s: %v\n", groupID, err)
			continue
		}

		table := tablewriter.NewWriter(os.Stdout)
		table.SetHeader([]string{"Time", "Operation", "Old", "New", "Change", "By"})
		for _, record := range history {
			by := ""
			if record.User != nil {
				by = record.User.Name
			}
			table.Append([]string{
				record.Timestamp.Local().Format("2006-01-02 15:04:05"),
				record.Operation,
				calc.FormatNumber(record.OldValue),
				calc.FormatNumber(record.NewValue),
				calc.FormatNumber(record.Change),
				by,
			})
		}
		table.Render()
	}

	// 3. Audit trail (read-only)
	// Note: BypassLockGuard allows opening if another process (the bot) holds the lock
	opts := badger.DefaultOptions(config.BadgerFilepath).
		WithReadOnly(true).
		WithBypassLockGuard(true).
		WithLoggingLevel(badger.WARNING)

	db, err := badger.Open(opts)
	if err != nil {
		color.Yellow.Printf("\nAudit trail unavailable: %v\n", err)
		return
	}
	defer db.Close()

	auditRepository := repositories.NewAuditRepository(db, logger)
	entries, err := auditRepository.Recent(config.AuditLimit)
	if err != nil {
		log.Fatalf("Failed to read audit trail: %v", err)
	}

	color.Green.Printf("\n🔎 Last %d audit entries\n", len(entries))
	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"At", "Type", "Group", "Action", "Detail"})
	for _, entry := range entries {
		table.Append([]string{
			entry.At.Local().Format(time.RFC3339),
			string(entry.Type),
			entry.GroupID,
			entry.Action,
			entry.Detail,
		})
	}
	table.Render()
}
