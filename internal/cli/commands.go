package cli

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	pkgerrors "github.com/giftshop/cartsync/pkg/errors"
	"github.com/giftshop/cartsync/pkg/types"
)

type sessionFunc func(ctx context.Context, cmd *cobra.Command, s *session) error

// withSession opens the storefront stack, runs fn and closes the slot.
func withSession(opts *RootOptions, sopts sessionOptions, fn sessionFunc) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}
		s, err := openSession(ctx, cmd, opts, sopts)
		if err != nil {
			return err
		}
		defer s.close()
		return fn(ctx, cmd, s)
	}
}

func showView(cmd *cobra.Command, opts *RootOptions, s *session) error {
	return writeView(cmd.OutOrStdout(), opts.Format, s.cart.View(), s.cart.Authenticated())
}

func NewShowCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print the current cart",
		Args:  cobra.NoArgs,
		RunE: withSession(opts, sessionOptions{}, func(_ context.Context, cmd *cobra.Command, s *session) error {
			return showView(cmd, opts, s)
		}),
	}
}

func NewCountCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "count",
		Short: "Print the number of units in the cart",
		Args:  cobra.NoArgs,
		RunE: withSession(opts, sessionOptions{}, func(ctx context.Context, cmd *cobra.Command, s *session) error {
			if !s.cart.Authenticated() {
				return writeCount(cmd.OutOrStdout(), opts.Format, s.cart.View().CartCount)
			}
			count, err := s.api.Count(ctx)
			if err != nil {
				return err
			}
			return writeCount(cmd.OutOrStdout(), opts.Format, count)
		}),
	}
}

type addOptions struct {
	nameEn      string
	nameAr      string
	price       string
	imageURL    string
	categoryID  string
	occasionID  string
	bestSeller  bool
	specialGift bool
	quantity    int
}

func NewAddCommand(opts *RootOptions) *cobra.Command {
	add := &addOptions{}
	cmd := &cobra.Command{
		Use:   "add <productId>",
		Short: "Add a product to the cart",
		Long: `Add quantity units of a product. A product already in the cart keeps its
original name, price and image; only the quantity grows. Both names and the
image are required, in guest mode too, so the line can be merged on login.

Examples:
  cartctl add 12 --name-en Roses --name-ar ورود --price 49.90 --image https://cdn.example.com/12.png
  cartctl add 12 --name-en Roses --name-ar ورود --price 49.90 --image https://cdn.example.com/12.png --qty 2`,
		Args: cobra.ExactArgs(1),
	}
	cmd.Flags().StringVar(&add.nameEn, "name-en", "", "english product name")
	cmd.Flags().StringVar(&add.nameAr, "name-ar", "", "arabic product name")
	cmd.Flags().StringVar(&add.price, "price", "0", "unit price")
	cmd.Flags().StringVar(&add.imageURL, "image", "", "product image url")
	cmd.Flags().StringVar(&add.categoryID, "category", "", "category id")
	cmd.Flags().StringVar(&add.occasionID, "occasion", "", "occasion id")
	cmd.Flags().BoolVar(&add.bestSeller, "best-seller", false, "mark as best seller")
	cmd.Flags().BoolVar(&add.specialGift, "special-gift", false, "mark as special gift")
	cmd.Flags().IntVar(&add.quantity, "qty", 1, "units to add")

	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		ref, err := parseProductRef(args[0])
		if err != nil {
			return err
		}
		price, err := decimal.NewFromString(strings.TrimSpace(add.price))
		if err != nil {
			return WrapExitError(ExitCommandError, "invalid --price", err)
		}
		snapshot := types.ProductSnapshot{
			NameEn:        add.nameEn,
			NameAr:        add.nameAr,
			Price:         price.Round(2),
			ImageURL:      add.imageURL,
			CategoryID:    add.categoryID,
			OccasionID:    add.occasionID,
			IsBestSeller:  add.bestSeller,
			IsSpecialGift: add.specialGift,
		}
		return withSession(opts, sessionOptions{}, func(ctx context.Context, cmd *cobra.Command, s *session) error {
			if _, err := s.cart.Add(ctx, ref, snapshot, add.quantity); err != nil {
				return err
			}
			return showView(cmd, opts, s)
		})(cmd, args)
	}
	return cmd
}

func NewUpdateCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "update <productId> <quantity>",
		Short: "Set the quantity of a product; zero removes it",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ref, err := parseProductRef(args[0])
			if err != nil {
				return err
			}
			qty, err := strconv.Atoi(args[1])
			if err != nil {
				return WrapExitError(ExitCommandError, "invalid quantity", err)
			}
			return withSession(opts, sessionOptions{}, func(ctx context.Context, cmd *cobra.Command, s *session) error {
				if _, err := s.cart.UpdateQuantity(ctx, ref, qty); err != nil {
					return err
				}
				return showView(cmd, opts, s)
			})(cmd, args)
		},
	}
}

func NewRemoveCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "remove <productId>",
		Short: "Remove a product from the cart",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ref, err := parseProductRef(args[0])
			if err != nil {
				return err
			}
			return withSession(opts, sessionOptions{}, func(ctx context.Context, cmd *cobra.Command, s *session) error {
				if _, err := s.cart.Remove(ctx, ref); err != nil {
					return err
				}
				return showView(cmd, opts, s)
			})(cmd, args)
		},
	}
}

func NewClearCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Empty the cart",
		Args:  cobra.NoArgs,
		RunE: withSession(opts, sessionOptions{}, func(ctx context.Context, cmd *cobra.Command, s *session) error {
			if _, err := s.cart.Clear(ctx); err != nil {
				return err
			}
			return showView(cmd, opts, s)
		}),
	}
}

func NewLoginCommand(opts *RootOptions) *cobra.Command {
	var token, devUser string
	var dev bool
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in and merge the guest cart into the account cart",
		Long: `Sign in with an access token. Guest items are merged into the account cart;
if the merge fails the session stays signed in and "cartctl sync" retries it
without double counting.`,
		Args: cobra.NoArgs,
		RunE: withSession(opts, sessionOptions{skipResume: true}, func(ctx context.Context, cmd *cobra.Command, s *session) error {
			if dev {
				minted, err := s.api.DevToken(ctx, devUser)
				if err != nil {
					return err
				}
				token = minted
			}
			token = strings.TrimSpace(token)
			if token == "" {
				return WrapExitError(ExitCommandError, "login", fmt.Errorf("--token or --dev is required"))
			}

			s.store.SaveSessionToken(ctx, token)
			if _, err := s.cart.Login(ctx, token); err != nil {
				return err
			}
			return showView(cmd, opts, s)
		}),
	}
	cmd.Flags().StringVar(&token, "token", "", "access token")
	cmd.Flags().BoolVar(&dev, "dev", false, "mint a token from a dev-mode server")
	cmd.Flags().StringVar(&devUser, "user", "", "user id for --dev; a new one when empty")
	return cmd
}

func NewSyncCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Retry merging the guest cart into the account cart",
		Args:  cobra.NoArgs,
		RunE: withSession(opts, sessionOptions{}, func(ctx context.Context, cmd *cobra.Command, s *session) error {
			if _, err := s.cart.Resync(ctx); err != nil {
				return err
			}
			return showView(cmd, opts, s)
		}),
	}
}

func NewLogoutCommand(opts *RootOptions) *cobra.Command {
	// A stale token must not block logout, so the account cart is never loaded here.
	sopts := sessionOptions{skipResume: true}
	cmd := &cobra.Command{
		Use:   "logout",
		Short: "Sign out and return to the guest cart",
		Args:  cobra.NoArgs,
	}
	cmd.Flags().BoolVar(&sopts.purgeLocalOnLogout, "purge-local", false, "discard the guest cart kept on this machine")
	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		return withSession(opts, sopts, func(ctx context.Context, cmd *cobra.Command, s *session) error {
			if token, ok := s.store.SessionToken(ctx); ok {
				s.api.SetToken(token)
				if err := s.api.Logout(ctx); err != nil && !pkgerrors.IsCode(err, pkgerrors.CodeUnauthorized) {
					fmt.Fprintln(cmd.ErrOrStderr(), "warning: server session not revoked:", err)
				}
			}
			s.store.PurgeSessionToken(ctx)
			view := s.cart.Logout(ctx)
			return writeView(cmd.OutOrStdout(), opts.Format, view, false)
		})(cmd, args)
	}
	return cmd
}

func parseProductRef(raw string) (int64, error) {
	ref, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil || ref <= 0 {
		return 0, WrapExitError(ExitCommandError, "invalid product id", fmt.Errorf("%q", raw))
	}
	return ref, nil
}
