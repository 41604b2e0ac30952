// marketauthctl es el CLI administrativo: gestión de claves de firma y
// purga de download tickets. Opera directo contra la base.
package main

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/gridforge/marketauth/internal/store/core"
	"github.com/gridforge/marketauth/internal/store/pg"
	"github.com/gridforge/marketauth/internal/ticket"
	migrations "github.com/gridforge/marketauth/migrations/postgres"
)

const rsaBits = 2048

func main() {
	_ = godotenv.Load()

	var (
		dsn     = envOr("STORAGE_DSN", "")
		keyName = envOr("TOKEN_KEY_NAME", "marketauth-signing")
	)

	root := &cobra.Command{
		Use:   "marketauthctl",
		Short: "CLI admin de marketauth (claves de firma y tickets)",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if dsn == "" {
				return fmt.Errorf("falta DSN (flag --dsn o env STORAGE_DSN)")
			}
			return nil
		},
	}
	root.PersistentFlags().StringVar(&dsn, "dsn", dsn, "DSN de postgres (env STORAGE_DSN)")
	root.PersistentFlags().StringVar(&keyName, "key-name", keyName, "nombre lógico de la clave (env TOKEN_KEY_NAME)")

	withStore := func(fn func(ctx context.Context, s *pg.Store) error) func(*cobra.Command, []string) error {
		return func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			s, err := pg.New(ctx, dsn, pg.Config{})
			if err != nil {
				return err
			}
			defer s.Close()
			return fn(ctx, s)
		}
	}

	// --- migrate ---
	migrateCmd := &cobra.Command{
		Use:   "migrate",
		Short: "Aplicar migraciones pendientes",
		RunE: withStore(func(ctx context.Context, s *pg.Store) error {
			if err := s.ApplyMigrations(ctx, migrations.FS, migrations.Dir); err != nil {
				return err
			}
			fmt.Println("ok")
			return nil
		}),
	}

	// --- keys ---
	keysCmd := &cobra.Command{
		Use:   "keys",
		Short: "Gestión de versiones de la clave de firma",
	}

	keysCreateCmd := &cobra.Command{
		Use:   "create",
		Short: "Generar una versión nueva y marcarla como actual",
		RunE: withStore(func(ctx context.Context, s *pg.Store) error {
			priv, err := rsa.GenerateKey(rand.Reader, rsaBits)
			if err != nil {
				return fmt.Errorf("generate key: %w", err)
			}
			privDER, err := x509.MarshalPKCS8PrivateKey(priv)
			if err != nil {
				return err
			}
			pubDER, err := x509.MarshalPKIXPublicKey(&priv.PublicKey)
			if err != nil {
				return err
			}

			k := &core.SigningKey{
				KeyName:       keyName,
				VersionID:     uuid.NewString(),
				PublicKeyPEM:  pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: pubDER}),
				PrivateKeyPEM: pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: privDER}),
				Enabled:       true,
			}
			if err := s.InsertSigningKey(ctx, k); err != nil {
				return err
			}
			fmt.Printf("created version %s (current)\n", k.VersionID)
			return nil
		}),
	}

	keysListCmd := &cobra.Command{
		Use:   "list",
		Short: "Listar versiones de la clave",
		RunE: withStore(func(ctx context.Context, s *pg.Store) error {
			keys, err := s.ListSigningKeys(ctx, keyName)
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "VERSION\tENABLED\tCURRENT\tCREATED")
			for _, k := range keys {
				fmt.Fprintf(tw, "%s\t%v\t%v\t%s\n",
					k.VersionID, k.Enabled, k.IsCurrent, k.CreatedAt.Format(time.RFC3339))
			}
			return tw.Flush()
		}),
	}

	var disableVersion string
	keysDisableCmd := &cobra.Command{
		Use:   "disable",
		Short: "Deshabilitar una versión (sale del JWKS en el próximo request)",
		RunE: withStore(func(ctx context.Context, s *pg.Store) error {
			if disableVersion == "" {
				return fmt.Errorf("falta --version")
			}
			if err := s.DisableSigningKey(ctx, keyName, disableVersion); err != nil {
				return err
			}
			fmt.Println("ok")
			return nil
		}),
	}
	keysDisableCmd.Flags().StringVar(&disableVersion, "version", "", "version id a deshabilitar")

	keysCmd.AddCommand(keysCreateCmd, keysListCmd, keysDisableCmd)

	// --- tickets ---
	ticketsCmd := &cobra.Command{
		Use:   "tickets",
		Short: "Mantenimiento de download tickets",
	}

	var purgeTTL time.Duration
	ticketsPurgeCmd := &cobra.Command{
		Use:   "purge",
		Short: "Borrar tickets fuera de TTL (consumidos o no)",
		RunE: withStore(func(ctx context.Context, s *pg.Store) error {
			svc := ticket.NewService(s, purgeTTL)
			n, err := svc.Purge(ctx)
			if err != nil {
				return err
			}
			fmt.Printf("purged %d tickets\n", n)
			return nil
		}),
	}
	ticketsPurgeCmd.Flags().DurationVar(&purgeTTL, "ttl", 5*time.Minute, "TTL de tickets")
	ticketsCmd.AddCommand(ticketsPurgeCmd)

	root.AddCommand(migrateCmd, keysCmd, ticketsCmd)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
