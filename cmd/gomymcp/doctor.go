package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"regexp"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	mymcp "github.com/dbbridge/mysql-mcp"
	"github.com/dbbridge/mysql-mcp/internal/meta"
)

func runDoctor() error {
	fs := flag.NewFlagSet("doctor", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to optional configuration file")
	noConnect := fs.Bool("no-connect", false, "Skip the live database connection check")
	fs.Parse(os.Args[2:])

	_ = godotenv.Load()

	useColor := isTTY(os.Stderr.Fd())
	return doctor(os.Stderr, useColor, *configPath, !*noConnect)
}

func doctor(w io.Writer, useColor bool, configPath string, tryConnect bool) error {
	printBanner(w, useColor)
	fmt.Fprintf(w, "gomymcp %s\n\n", meta.Version)

	// Validate environment and optional config file
	conn, config, ok := doctorValidateConfig(w, useColor, configPath)
	if !ok {
		fmt.Fprintln(w)
		fmt.Fprintln(w, "Fix the issues above and run 'gomymcp doctor' again.")
		return nil
	}

	// Live connection check
	if tryConnect {
		doctorCheckConnection(w, useColor, conn, config)
	}

	// Print agent connection snippets
	fmt.Fprintln(w)
	printAgentSnippets(w, useColor, config)
	return nil
}

// doctorValidateConfig validates the MYSQL_* environment variables and, when
// present, the optional config file, printing check results. Returns the
// connection config, the server config, and true if all checks passed.
func doctorValidateConfig(w io.Writer, useColor bool, configPath string) (mymcp.ConnConfig, *mymcp.ServerConfig, bool) {
	allPassed := true

	// Check 1: Required environment variables
	conn, err := mymcp.LoadEnv()
	if err != nil {
		printCheck(w, useColor, false, fmt.Sprintf("MYSQL_* environment variables set: %v", err))
		allPassed = false
	} else {
		printCheck(w, useColor, true, fmt.Sprintf("MYSQL_* environment variables set (%s@%s:%d/%s)",
			conn.User, conn.Host, conn.Port, conn.Database))
	}

	// Check 2: Optional config file. A missing default-path file is fine;
	// an explicitly given path must exist.
	config := &mymcp.ServerConfig{}
	explicit := configPath != ""
	if !explicit {
		configPath = ".gomymcp/config.json"
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		if explicit || !os.IsNotExist(err) {
			printCheck(w, useColor, false, fmt.Sprintf("Config file readable (%s)", configPath))
			allPassed = false
			return conn, nil, allPassed
		}
		printCheck(w, useColor, true, fmt.Sprintf("No config file (%s), using defaults", configPath))
	} else {
		printCheck(w, useColor, true, fmt.Sprintf("Config file readable (%s)", configPath))
		if err := json.Unmarshal(data, config); err != nil {
			printCheck(w, useColor, false, fmt.Sprintf("Config file is valid JSON: %v", err))
			allPassed = false
			return conn, nil, allPassed
		}
		printCheck(w, useColor, true, "Config file is valid JSON")
	}

	// Check 3: Health check path set when enabled
	if config.Server.HealthCheckEnabled {
		if config.Server.HealthCheckPath == "" {
			printCheck(w, useColor, false, "health_check_path is set (required when health_check_enabled)")
			allPassed = false
		} else {
			printCheck(w, useColor, true, fmt.Sprintf("health_check_path is set (%s)", config.Server.HealthCheckPath))
		}
	}

	// Check 4: Regex patterns compile
	regexOK := true

	for i, rule := range config.ErrorPrompts {
		if _, err := regexp.Compile(rule.Pattern); err != nil {
			printCheck(w, useColor, false, fmt.Sprintf("error_prompts[%d] regex compiles: %v", i, err))
			regexOK = false
			allPassed = false
		}
	}

	for i, rule := range config.Sanitization {
		if _, err := regexp.Compile(rule.Pattern); err != nil {
			printCheck(w, useColor, false, fmt.Sprintf("sanitization[%d] regex compiles: %v", i, err))
			regexOK = false
			allPassed = false
		}
	}

	for i, rule := range config.Exec.TimeoutRules {
		if _, err := regexp.Compile(rule.Pattern); err != nil {
			printCheck(w, useColor, false, fmt.Sprintf("timeout_rules[%d] regex compiles: %v", i, err))
			regexOK = false
			allPassed = false
		}
	}

	for i, hook := range config.ServerHooks.BeforeExec {
		if _, err := regexp.Compile(hook.Pattern); err != nil {
			printCheck(w, useColor, false, fmt.Sprintf("server_hooks.before_exec[%d] regex compiles: %v", i, err))
			regexOK = false
			allPassed = false
		}
	}

	for i, hook := range config.ServerHooks.AfterExec {
		if _, err := regexp.Compile(hook.Pattern); err != nil {
			printCheck(w, useColor, false, fmt.Sprintf("server_hooks.after_exec[%d] regex compiles: %v", i, err))
			regexOK = false
			allPassed = false
		}
	}

	if regexOK {
		printCheck(w, useColor, true, "All regex patterns compile")
	}

	return conn, config, allPassed
}

// doctorCheckConnection attempts a live connection and ping.
func doctorCheckConnection(w io.Writer, useColor bool, conn mymcp.ConnConfig, config *mymcp.ServerConfig) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	m, err := mymcp.New(ctx, conn, config.Config, zerolog.Nop())
	if err != nil {
		printCheck(w, useColor, false, fmt.Sprintf("Database connection: %v", err))
		return
	}
	defer m.Close(ctx)

	if err := m.Ping(ctx); err != nil {
		printCheck(w, useColor, false, fmt.Sprintf("Database ping: %v", err))
		return
	}
	printCheck(w, useColor, true, fmt.Sprintf("Database reachable (%s:%d/%s)", conn.Host, conn.Port, conn.Database))
}

// printCheck prints a colored ✓ or ✗ check line.
func printCheck(w io.Writer, useColor bool, pass bool, msg string) {
	if pass {
		if useColor {
			fmt.Fprintf(w, "  \033[32m✓\033[0m %s\n", msg)
		} else {
			fmt.Fprintf(w, "  ✓ %s\n", msg)
		}
	} else {
		if useColor {
			fmt.Fprintf(w, "  \033[31m✗\033[0m %s\n", msg)
		} else {
			fmt.Fprintf(w, "  ✗ %s\n", msg)
		}
	}
}

// printAgentSnippets prints MCP connection config snippets for various AI agents.
func printAgentSnippets(w io.Writer, useColor bool, config *mymcp.ServerConfig) {
	heading := func(title string) {
		if useColor {
			fmt.Fprintf(w, "\033[1;36m%s\033[0m\n", title)
		} else {
			fmt.Fprintln(w, title)
		}
	}

	subheading := func(title string) {
		if useColor {
			fmt.Fprintf(w, "  \033[1m%s\033[0m\n", title)
		} else {
			fmt.Fprintf(w, "  %s\n", title)
		}
	}

	heading("Agent Connection Snippets")
	fmt.Fprintln(w)

	if config == nil || config.Server.Port <= 0 {
		// Stdio transport
		subheading("Claude Code")
		fmt.Fprintf(w, "  Run this command to add the server:\n\n")
		fmt.Fprintf(w, "    claude mcp add mysql -- gomymcp serve\n\n")
		fmt.Fprintf(w, "  Or add to .mcp.json (project scope):\n\n")
		fmt.Fprint(w, `  {
    "mcpServers": {
      "mysql": {
        "command": "gomymcp",
        "args": ["serve"],
        "env": {
          "MYSQL_HOST": "localhost",
          "MYSQL_PORT": "3306",
          "MYSQL_USER": "...",
          "MYSQL_PASSWORD": "...",
          "MYSQL_DATABASE": "..."
        }
      }
    }
  }
`)
		fmt.Fprintln(w)

		subheading("Cursor (.cursor/mcp.json)")
		fmt.Fprint(w, `  {
    "mcpServers": {
      "mysql": {
        "command": "gomymcp",
        "args": ["serve"]
      }
    }
  }
`)
		return
	}

	// HTTP transport
	url := fmt.Sprintf("http://localhost:%d/mcp", config.Server.Port)

	subheading("Claude Code")
	fmt.Fprintf(w, "  Run this command to add the server:\n\n")
	fmt.Fprintf(w, "    claude mcp add --transport http mysql %s\n\n", url)
	fmt.Fprintf(w, "  Or add to .mcp.json (project scope):\n\n")
	fmt.Fprintf(w, `  {
    "mcpServers": {
      "mysql": {
        "type": "http",
        "url": "%s"
      }
    }
  }
`, url)
	fmt.Fprintln(w)

	subheading("Gemini CLI (~/.gemini/settings.json)")
	fmt.Fprintf(w, `  {
    "mcpServers": {
      "mysql": {
        "httpUrl": "%s"
      }
    }
  }
`, url)
	fmt.Fprintln(w)

	subheading("Cursor (.cursor/mcp.json)")
	fmt.Fprintf(w, `  {
    "mcpServers": {
      "mysql": {
        "url": "%s"
      }
    }
  }
`, url)
}
