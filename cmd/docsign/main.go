package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"docsign/internal/app"
	"docsign/internal/config"
	"docsign/internal/docsign"
)

// envPassphrase supplies the key passphrase for non-interactive runs.
const envPassphrase = "DOCSIGN_PASSPHRASE"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

// loadConfig reads the config file from the default location.
func loadConfig() (*config.Config, error) {
	defaults, err := app.GetDefaults()
	if err != nil {
		return nil, fmt.Errorf("getting defaults: %w", err)
	}
	return defaults.LoadConfig()
}

// newApp reads the config and creates a DocSignApp. The caller must defer
// app.Close(). operation identifies the CLI command being run.
func newApp(operation string) (*app.DocSignApp, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}

	var passphrase string
	if cfg.Storage.Encrypt {
		passphrase, err = readPassphrase("Key passphrase: ", false)
		if err != nil {
			return nil, err
		}
	}

	a, err := app.NewDocSignApp(cfg, app.Options{Operation: operation, Passphrase: passphrase})
	if err != nil {
		return nil, fmt.Errorf("initializing app: %w", err)
	}
	return a, nil
}

// readPassphrase takes the passphrase from the environment, or prompts on
// the terminal. With confirm set the passphrase is asked for twice.
func readPassphrase(prompt string, confirm bool) (string, error) {
	if p := os.Getenv(envPassphrase); p != "" {
		return p, nil
	}
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return "", fmt.Errorf("no terminal to prompt for a passphrase: set %s", envPassphrase)
	}

	fmt.Fprint(os.Stderr, prompt)
	first, err := term.ReadPassword(fd)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("reading passphrase: %w", err)
	}
	if !confirm {
		return string(first), nil
	}

	fmt.Fprint(os.Stderr, "Repeat passphrase: ")
	second, err := term.ReadPassword(fd)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("reading passphrase: %w", err)
	}
	if string(first) != string(second) {
		return "", fmt.Errorf("passphrases do not match")
	}
	return string(first), nil
}

var rootCmd = &cobra.Command{
	Use:          "docsign",
	Short:        "Upload, share and sign documents",
	SilenceUsage: true,
}

// config command
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		defaults, err := app.GetDefaults()
		if err != nil {
			return fmt.Errorf("failed to get defaults: %w", err)
		}

		instanceID := uuid.New().String()
		cfg := defaults.NewConfig(instanceID)

		if err := config.Init(defaults.ConfigPath, cfg); err != nil {
			return fmt.Errorf("failed to initialize config: %w", err)
		}

		fmt.Printf("Configuration initialized at %s\n", defaults.ConfigPath)
		fmt.Printf("Instance ID: %s\n", instanceID)
		fmt.Printf("Base Dir:    %s\n", defaults.BaseDir)
		return nil
	},
}

var configListCmd = &cobra.Command{
	Use:   "list",
	Short: "View configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		defaults, err := app.GetDefaults()
		if err != nil {
			return fmt.Errorf("failed to get defaults: %w", err)
		}
		cfg, err := defaults.LoadConfig()
		if err != nil {
			return err
		}

		fmt.Printf("Configuration from %s:\n\n", defaults.ConfigPath)
		fmt.Printf("Instance ID: %s\n", cfg.InstanceID)
		fmt.Printf("Base Dir:    %s\n", cfg.BaseDir)
		fmt.Printf("Log Dir:     %s\n", cfg.LogDir)
		fmt.Printf("Storage:     %s (encrypt=%t)\n", cfg.Storage.Type, cfg.Storage.Encrypt)
		fmt.Printf("Database:    %s\n", cfg.Database.Type)
		fmt.Printf("Mailer:      %s\n", cfg.Mailer.Type)
		fmt.Printf("Server:      %s (%s)\n", cfg.Server.Addr, cfg.Server.BaseURL)
		fmt.Printf("Tracing:     %t\n", cfg.Tracing.Enabled)
		return nil
	},
}

// keys command
var keysCmd = &cobra.Command{
	Use:   "keys",
	Short: "Manage at-rest encryption keys",
}

var keysInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Generate the encryption key pair",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		passphrase, err := readPassphrase("New key passphrase: ", true)
		if err != nil {
			return err
		}
		if err := app.SetupKeys(cfg, passphrase); err != nil {
			return err
		}
		fmt.Printf("Public key:  %s\n", cfg.Encryption.PublicKeyPath)
		fmt.Printf("Private key: %s (passphrase protected)\n", cfg.Encryption.PrivateKeyPath)
		return nil
	},
}

// serve command
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the signing web server",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp("Serve")
		if err != nil {
			return err
		}
		defer a.Close()

		return a.Serve(cmd.Context())
	},
}

// doc command
var docCmd = &cobra.Command{
	Use:   "doc",
	Short: "Manage documents",
}

var docAddCmd = &cobra.Command{
	Use:   "add FILE",
	Short: "Upload a PDF or image document",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp("AddDocument")
		if err != nil {
			return err
		}
		defer a.Close()

		doc, err := a.AddDocumentFile(cmd.Context(), args[0])
		if err != nil {
			return fmt.Errorf("adding document: %w", err)
		}
		fmt.Printf("Added %s (%s, %d bytes)\n", doc.ID, doc.Type, doc.Size)
		fmt.Printf("Signing link: %s\n", a.Service().SigningLink(doc.ID))
		return nil
	},
}

var docListCmd = &cobra.Command{
	Use:   "list",
	Short: "List documents",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp("ListDocuments")
		if err != nil {
			return err
		}
		defer a.Close()

		docs := a.ListDocuments()
		if len(docs) == 0 {
			fmt.Println("No documents.")
			return nil
		}
		for _, d := range docs {
			fmt.Printf("%s  %-8s  %s  %8d  %s\n",
				d.ID,
				d.SignatureStatus,
				d.CreatedAt.Format("2006-01-02 15:04:05"),
				d.Size,
				d.Name,
			)
		}
		return nil
	},
}

var docShareCmd = &cobra.Command{
	Use:   "share ID EMAIL",
	Short: "Email the signing link to a recipient",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp("ShareDocument")
		if err != nil {
			return err
		}
		defer a.Close()

		res, err := a.ShareDocument(cmd.Context(), args[0], args[1])
		if err != nil {
			return fmt.Errorf("sharing document: %w", err)
		}
		fmt.Printf("Signing link: %s\n", res.Link)
		if !res.EmailSent {
			fmt.Println("Email could not be delivered; send the link manually.")
		}
		return nil
	},
}

var docSignCmd = &cobra.Command{
	Use:   "sign ID",
	Short: "Sign a document with a PNG signature",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		name, _ := cmd.Flags().GetString("name")
		sigPath, _ := cmd.Flags().GetString("signature")
		page, _ := cmd.Flags().GetInt("page")
		x, _ := cmd.Flags().GetFloat64("x")
		y, _ := cmd.Flags().GetFloat64("y")

		// Without an explicit position the signature goes to the corner.
		var pl *docsign.Placement
		if cmd.Flags().Changed("x") || cmd.Flags().Changed("y") {
			pl = &docsign.Placement{Page: page, X: x, Y: y}
		} else if cmd.Flags().Changed("page") {
			pl = &docsign.Placement{Page: page, Corner: true}
		}

		a, err := newApp("SignDocument")
		if err != nil {
			return err
		}
		defer a.Close()

		doc, err := a.SignDocumentFile(cmd.Context(), args[0], name, sigPath, pl)
		if err != nil {
			return fmt.Errorf("signing document: %w", err)
		}
		fmt.Printf("Signed %s by %s\n", doc.Name, doc.SignedBy)
		fmt.Printf("Download: %s\n", doc.PreviewURL)
		return nil
	},
}

var docExportCmd = &cobra.Command{
	Use:   "export ID FILE",
	Short: "Write the stored document to a file",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp("ExportDocument")
		if err != nil {
			return err
		}
		defer a.Close()

		f, err := os.Create(args[1])
		if err != nil {
			return fmt.Errorf("creating %s: %w", args[1], err)
		}
		defer f.Close()

		doc, err := a.ExportDocument(cmd.Context(), args[0], f)
		if err != nil {
			return fmt.Errorf("exporting document: %w", err)
		}
		fmt.Printf("Wrote %s (%s) to %s\n", doc.Name, doc.SignatureStatus, args[1])
		return nil
	},
}

// notifications command
var notificationsCmd = &cobra.Command{
	Use:   "notifications",
	Short: "View notifications",
}

var notificationsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List notifications",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp("ListNotifications")
		if err != nil {
			return err
		}
		defer a.Close()

		notes, unread := a.ListNotifications()
		if len(notes) == 0 {
			fmt.Println("No notifications.")
			return nil
		}
		fmt.Printf("%d unread\n", unread)
		for _, n := range notes {
			marker := " "
			if !n.Read {
				marker = "*"
			}
			fmt.Printf("%s %s  %-7s  %s  %s\n",
				marker,
				n.ID,
				n.Type,
				n.CreatedAt.Format("2006-01-02 15:04:05"),
				n.Message,
			)
		}
		return nil
	},
}

var notificationsReadCmd = &cobra.Command{
	Use:   "read ID",
	Short: "Mark a notification as read",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp("MarkNotificationAsRead")
		if err != nil {
			return err
		}
		defer a.Close()

		return a.MarkNotificationAsRead(cmd.Context(), args[0])
	},
}

func init() {
	// config subcommands
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configListCmd)

	// keys subcommands
	keysCmd.AddCommand(keysInitCmd)

	// doc subcommands
	docCmd.AddCommand(docAddCmd)
	docCmd.AddCommand(docListCmd)
	docCmd.AddCommand(docShareCmd)
	docCmd.AddCommand(docSignCmd)
	docSignCmd.Flags().String("name", "", "Signer name (defaults to Anonymous)")
	docSignCmd.Flags().String("signature", "", "Path to a PNG signature image")
	docSignCmd.Flags().Int("page", 1, "Page to sign, 1-based")
	docSignCmd.Flags().Float64("x", 0, "Left edge of the signature in page units")
	docSignCmd.Flags().Float64("y", 0, "Bottom edge of the signature in page units")
	_ = docSignCmd.MarkFlagRequired("signature")
	docCmd.AddCommand(docExportCmd)

	// notifications subcommands
	notificationsCmd.AddCommand(notificationsListCmd)
	notificationsCmd.AddCommand(notificationsReadCmd)

	// root commands
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(keysCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(docCmd)
	rootCmd.AddCommand(notificationsCmd)
}
