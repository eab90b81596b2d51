package banner

import (
	"fmt"

	"forkchat/pkg/config"
)

const banner = `
███████╗ ██████╗ ██████╗ ██╗  ██╗ ██████╗██╗  ██╗ █████╗ ████████╗
██╔════╝██╔═══██╗██╔══██╗██║ ██╔╝██╔════╝██║  ██║██╔══██╗╚══██╔══╝
█████╗  ██║   ██║██████╔╝█████╔╝ ██║     ███████║███████║   ██║
██╔══╝  ██║   ██║██╔══██╗██╔═██╗ ██║     ██╔══██║██╔══██║   ██║
██║     ╚██████╔╝██║  ██║██║  ██╗╚██████╗██║  ██║██║  ██║   ██║
╚═╝      ╚═════╝ ╚═╝  ╚═╝╚═╝  ╚═╝ ╚═════╝╚═╝  ╚═╝╚═╝  ╚═╝   ╚═╝
`

// Print writes the startup banner with the effective runtime configuration
// and a short endpoint cheat sheet.
func Print(cfg *config.Config, addr, dbPath, version string) {
	fmt.Print(banner)
	fmt.Println("== Config =====================================================")
	fmt.Printf("Listen:   %s\n", addr)
	fmt.Printf("DB Path:  %s\n", dbPath)
	if version != "" {
		fmt.Printf("Version:  %s\n", version)
	}
	if cfg != nil {
		if cfg.Model.APIKey != "" {
			model := cfg.Model.Model
			if model == "" {
				model = "default"
			}
			fmt.Printf("Model:    %s\n", model)
		} else {
			fmt.Println("Model:    not configured (chat disabled)")
		}
		if cfg.Backup.Enabled {
			cron := cfg.Backup.Cron
			if cron == "" {
				cron = "0 2 * * *"
			}
			fmt.Printf("Backups:  enabled (%s)\n", cron)
		} else {
			fmt.Println("Backups:  disabled")
		}
	}
	fmt.Println("\n== Endpoints ==================================================")
	fmt.Println("POST /v1/threads                 - Create a thread (JSON: seedText or name)")
	fmt.Println("POST /v1/threads/{id}/messages   - Add a message to a thread")
	fmt.Println("POST /v1/messages/{id}/fork      - Fork a new thread from a message")
	fmt.Println("GET  /v1/threads/{id}/context    - Preview the resolved model context")
	fmt.Println("POST /v1/threads/{id}/chat       - Chat with streaming model reply")
	fmt.Println("\n== Examples ===================================================")
	fmt.Printf("curl -X POST 'http://localhost%s/v1/threads' -d '{\"name\": \"research\"}'\n", addr)
	fmt.Printf("curl 'http://localhost%s/v1/threads'\n", addr)
	fmt.Println("\n== Production? =================================================")
	fmt.Println("Set a proper storage path (--db)")
	fmt.Println("Set FORKCHAT_MODEL_API_KEY to enable the chat endpoint")
}
