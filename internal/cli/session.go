package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/giftshop/cartsync/internal/client/cartsync"
	"github.com/giftshop/cartsync/internal/client/facade"
	"github.com/giftshop/cartsync/internal/client/localcache"
	"github.com/giftshop/cartsync/internal/client/remote"
	"github.com/giftshop/cartsync/pkg/config"
	"github.com/giftshop/cartsync/pkg/logger"
)

// session is one command's view of the storefront stack.
type session struct {
	cart  *facade.Cart
	api   *remote.Client
	store *localcache.Store
	slot  *localcache.GormSlot
}

type sessionOptions struct {
	purgeLocalOnLogout bool
	// skipResume leaves a persisted token unused, for commands that replace it.
	skipResume bool
}

func openSession(ctx context.Context, cmd *cobra.Command, opts *RootOptions, sopts sessionOptions) (*session, error) {
	cfg, err := config.LoadClient()
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "load client config", err)
	}
	if opts.APIURL != "" {
		cfg.APIBaseURL = opts.APIURL
	}
	if opts.SlotPath != "" {
		cfg.SlotPath = opts.SlotPath
	}

	logg := newLogger(cmd.ErrOrStderr(), cfg.LogLevel, opts.Verbose)

	api, err := remote.NewFromConfig(*cfg, logg)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "configure cart api", err)
	}
	slot, err := localcache.OpenSQLiteSlot(cfg.SlotPath)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "open local cart slot", err)
	}
	store := localcache.NewStore(slot, logg)

	engine, err := cartsync.New(api, store, logg)
	if err != nil {
		_ = slot.Close()
		return nil, err
	}
	cart, err := facade.New(api, store, engine, facade.Options{
		Notifier:           writerNotifier{w: cmd.ErrOrStderr()},
		Logger:             logg,
		PurgeLocalOnLogout: sopts.purgeLocalOnLogout,
	})
	if err != nil {
		_ = slot.Close()
		return nil, err
	}

	s := &session{cart: cart, api: api, store: store, slot: slot}
	if token, ok := store.SessionToken(ctx); ok && !sopts.skipResume {
		_, err = cart.Resume(ctx, token)
	} else {
		_, err = cart.Load(ctx)
	}
	if err != nil {
		_ = s.close()
		return nil, err
	}
	return s, nil
}

func (s *session) close() error {
	return s.slot.Close()
}

func newLogger(w io.Writer, level string, verbose bool) *logger.Logger {
	lvl := logger.ParseLevel(level)
	if verbose {
		lvl = zerolog.DebugLevel
	}
	return logger.New(logger.Options{ServiceName: "cartctl", Level: lvl, Output: w})
}

// writerNotifier prints facade toasts as plain lines.
type writerNotifier struct {
	w io.Writer
}

func (n writerNotifier) Success(_ context.Context, message string) {
	fmt.Fprintln(n.w, message)
}

func (n writerNotifier) Error(_ context.Context, message string) {
	fmt.Fprintln(n.w, "error: "+message)
}
