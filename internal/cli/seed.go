package cli

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"messaging-service/internal/config"
	"messaging-service/internal/db"
	"messaging-service/internal/messaging"
	"messaging-service/internal/models"
	"messaging-service/internal/repositories"
)

// NewSeedCommand loads a small conversation for local development.
func NewSeedCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "seed",
		Short: "Create sample users, messages and edits",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(rootOpts.ConfigPath)
			if err != nil {
				return err
			}
			database, err := db.Connect(cfg.DBDriver, cfg.DBDSN)
			if err != nil {
				return err
			}
			defer database.Close()
			return Seed(cmd.Context(), repositories.NewStore(database), cmd.OutOrStdout())
		},
	}
}

// Seed creates alice, bob and carol (reusing existing users) and a short
// thread with one edited message.
func Seed(ctx context.Context, store *repositories.Store, out io.Writer) error {
	users := map[string]models.User{}
	for _, name := range []string{"alice", "bob", "carol"} {
		user, err := store.GetUserByUsername(ctx, name)
		if errors.Is(err, repositories.ErrUserNotFound) {
			user, err = store.CreateUser(ctx, name)
		}
		if err != nil {
			return fmt.Errorf("seed user %s: %w", name, err)
		}
		users[name] = user
	}
	alice, bob, carol := users["alice"], users["bob"], users["carol"]

	svc := messaging.NewService(store, nil)
	root, err := svc.CreateMessage(ctx, alice.ID, bob.ID, "Hi Bob, lunch tomorrow?", nil)
	if err != nil {
		return err
	}
	if _, err := svc.UpdateMessageContent(ctx, root.ID, alice.ID, "Hi Bob, lunch tomorrow at noon?"); err != nil {
		return err
	}
	if _, err := svc.CreateMessage(ctx, bob.ID, alice.ID, "Sounds good!", &root.ID); err != nil {
		return err
	}
	if _, err := svc.CreateMessage(ctx, carol.ID, bob.ID, "Can I join?", nil); err != nil {
		return err
	}
	fmt.Fprintf(out, "seeded users=%d root_message=%d\n", len(users), root.ID)
	return nil
}
