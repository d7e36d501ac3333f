package cli

import (
	"errors"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/goccy/go-json"

	cartdto "github.com/giftshop/cartsync/api/controllers/cart/dto"
	"github.com/giftshop/cartsync/internal/client/facade"
	pkgerrors "github.com/giftshop/cartsync/pkg/errors"
)

const (
	ExitSuccess      = 0
	ExitFailure      = 1 // the cart operation was rejected
	ExitCommandError = 2 // bad flags, unreadable config, unreachable slot
)

// ExitError carries the process exit code for a failed command.
type ExitError struct {
	Code    int
	Message string
	Err     error
}

func (e *ExitError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

func WrapExitError(code int, message string, err error) *ExitError {
	return &ExitError{Code: code, Message: message, Err: err}
}

// GetExitCode maps an error to an exit code. Typed cart errors are failures.
func GetExitCode(err error) int {
	if err == nil {
		return ExitSuccess
	}
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return ExitFailure
}

// FormatError renders an error the way the command's output format expects.
func FormatError(w io.Writer, format string, err error) {
	if format != "json" {
		fmt.Fprintln(w, "error:", err)
		return
	}
	body := struct {
		Error cliError `json:"error"`
	}{Error: cliError{Code: string(pkgerrors.CodeInternal), Message: err.Error()}}
	if typed := pkgerrors.As(err); typed != nil {
		body.Error = cliError{Code: string(typed.Code()), Message: typed.Message(), Details: typed.Details()}
	}
	_ = json.NewEncoder(w).Encode(body)
}

type cliError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

// viewOutput is the wire cart shape plus whether the account cart is in use.
type viewOutput struct {
	cartdto.CartResponse
	Authenticated bool `json:"authenticated"`
}

func writeView(w io.Writer, format string, view facade.View, authenticated bool) error {
	if format == "json" {
		return json.NewEncoder(w).Encode(viewOutput{
			CartResponse:  cartdto.NewCartResponse(view.Items),
			Authenticated: authenticated,
		})
	}

	mode := "guest"
	if authenticated {
		mode = "account"
	}
	if len(view.Items) == 0 {
		fmt.Fprintf(w, "%s cart is empty\n", mode)
		return nil
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tQTY\tPRICE\tLINE")
	for _, item := range view.Items {
		fmt.Fprintf(tw, "%d\t%s\t%d\t%s\t%s\n",
			item.ProductRef,
			item.Snapshot.NameEn,
			item.Quantity,
			item.Snapshot.Price.StringFixed(2),
			item.LineTotal().StringFixed(2),
		)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	fmt.Fprintf(w, "%s cart: %d items, total %s\n", mode, view.CartCount, view.CartTotal.StringFixed(2))
	return nil
}

func writeCount(w io.Writer, format string, count int) error {
	if format == "json" {
		return json.NewEncoder(w).Encode(cartdto.CountResponse{Count: count})
	}
	_, err := fmt.Fprintln(w, count)
	return err
}
