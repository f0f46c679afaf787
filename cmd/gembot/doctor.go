package main

import (
	"context"
	"database/sql"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"time"

	"gembot/internal/config"
	"gembot/internal/persona"

	"github.com/spf13/cobra"
	_ "modernc.org/sqlite"
)

func doctorCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Run diagnostic checks on your gembot installation",
		Long: `Verifies that the configuration, credentials, database, and attachment
directory are correctly set up. Reports pass/fail for each check.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgPath := resolveConfigPath()
			fmt.Printf("gembot doctor v%s\n", version)
			fmt.Printf("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━\n\n")

			passed := 0
			failed := 0
			warned := 0

			// 1. Config file exists
			if _, err := os.Stat(cfgPath); err != nil {
				printFail("Config file", fmt.Sprintf("not found at %s", cfgPath))
				failed++
				fmt.Printf("\nRun 'gembot init' to create a default configuration.\n")
				return nil
			}
			printPass("Config file", cfgPath)
			passed++

			// 2. Config loads and validates
			cfg, err := config.Load(cfgPath)
			if err != nil {
				printFail("Config validation", err.Error())
				failed++
				fmt.Printf("\n%d passed, %d failed\n", passed, failed)
				return fmt.Errorf("%d check(s) failed", failed)
			}
			printPass("Config validation", "valid")
			passed++

			// 3. Credentials present
			if cfg.Telegram.Token == "" {
				printFail("Telegram token", "telegram.token is empty")
				failed++
			} else {
				printPass("Telegram token", "set")
				passed++
			}
			if cfg.Generation.APIKey == "" {
				printFail("Gemini API key", "generation.apiKey is empty")
				failed++
			} else {
				printPass("Gemini API key", "set")
				passed++
			}
			if len(cfg.Telegram.AllowFrom) == 0 {
				printWarn("Allow list", "empty: the bot will answer anyone who finds it")
				warned++
			} else {
				printPass("Allow list", fmt.Sprintf("%d user(s)", len(cfg.Telegram.AllowFrom)))
				passed++
			}

			// 4. Database writable
			if err := checkDatabase(cfg.History.DBPath); err != nil {
				printFail("Database", err.Error())
				failed++
			} else {
				printPass("Database", cfg.History.DBPath)
				passed++
			}

			// 5. Attachment directory writable
			if err := os.MkdirAll(cfg.Attachments.Dir, 0o755); err != nil {
				printFail("Attachments dir", err.Error())
				failed++
			} else {
				printPass("Attachments dir", cfg.Attachments.Dir)
				passed++
			}

			// 6. Persona loads
			if _, err := persona.Load(cfg.General.PersonaPath, logger); err != nil {
				printFail("Persona", err.Error())
				failed++
			} else if cfg.General.PersonaPath == "" {
				printPass("Persona", "built-in default")
				passed++
			} else {
				printPass("Persona", cfg.General.PersonaPath)
				passed++
			}

			// 7. Metrics port
			if cfg.Metrics.Enabled {
				if err := checkAddr(cfg.Metrics.Endpoint); err != nil {
					printWarn("Metrics endpoint", fmt.Sprintf("%s may be in use: %v", cfg.Metrics.Endpoint, err))
					warned++
				} else {
					printPass("Metrics endpoint", cfg.Metrics.Endpoint)
					passed++
				}
			}

			// 8. Log file writable
			if cfg.General.LogFile != "" {
				if err := os.MkdirAll(filepath.Dir(cfg.General.LogFile), 0o755); err != nil {
					printWarn("Log file", fmt.Sprintf("cannot create log directory: %v", err))
					warned++
				} else {
					printPass("Log file", cfg.General.LogFile)
					passed++
				}
			}

			// Summary
			fmt.Printf("\n━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━\n")
			fmt.Printf("Results: %d passed, %d warnings, %d failed\n", passed, warned, failed)
			if failed > 0 {
				fmt.Printf("\nPlease fix the failed checks before running the gateway.\n")
				return fmt.Errorf("%d check(s) failed", failed)
			}
			if warned > 0 {
				fmt.Printf("\ngembot should work but consider fixing the warnings.\n")
			} else {
				fmt.Printf("\nAll checks passed! gembot is ready to run.\n")
			}
			return nil
		},
	}
}

func checkDatabase(dbPath string) error {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return fmt.Errorf("cannot create database directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return fmt.Errorf("cannot open: %w", err)
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("cannot ping: %w", err)
	}

	// Try a write.
	if _, err := db.ExecContext(ctx, "CREATE TABLE IF NOT EXISTS _doctor_test (id INTEGER PRIMARY KEY)"); err != nil {
		return fmt.Errorf("not writable: %w", err)
	}
	db.ExecContext(ctx, "DROP TABLE IF EXISTS _doctor_test")

	return nil
}

func checkAddr(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	ln.Close()
	return nil
}

func printPass(check, detail string) {
	fmt.Printf("  [PASS] %-20s %s\n", check, detail)
}

func printFail(check, detail string) {
	fmt.Printf("  [FAIL] %-20s %s\n", check, detail)
}

func printWarn(check, detail string) {
	fmt.Printf("  [WARN] %-20s %s\n", check, detail)
}
