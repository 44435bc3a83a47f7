package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/yungbote/enneagram-backend/internal/data/repos"
	types "github.com/yungbote/enneagram-backend/internal/domain"
	"github.com/yungbote/enneagram-backend/internal/platform/dbctx"
)

var (
	couponCode    string
	couponUses    int
	couponExpires string
	couponActive  bool

	allowEmail  string
	allowFrom   string
	allowUntil  string
	allowNote   string
	allowActive bool
)

var couponCmd = &cobra.Command{
	Use:   "coupon",
	Short: "Manage payment-bypass coupons",
}

var couponAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Create or update a coupon",
	Long: `Create a coupon, or update the uses, expiry and active flag of an
existing one with the same code.

--expires takes RFC 3339 or YYYY-MM-DD.`,
	RunE: runCouponAdd,
}

var allowlistCmd = &cobra.Command{
	Use:   "allowlist",
	Short: "Manage the email allow-list",
}

var allowlistAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Grant an email payment bypass",
	Long: `Add an email to the allow-list or update its window.

--from defaults to now; an empty --until never expires.`,
	RunE: runAllowlistAdd,
}

func init() {
	couponAddCmd.Flags().StringVar(&couponCode, "code", "", "coupon code (required)")
	couponAddCmd.Flags().IntVar(&couponUses, "uses", 1, "remaining uses")
	couponAddCmd.Flags().StringVar(&couponExpires, "expires", "", "expiry date (required)")
	couponAddCmd.Flags().BoolVar(&couponActive, "active", true, "whether the coupon can be used")
	_ = couponAddCmd.MarkFlagRequired("code")
	_ = couponAddCmd.MarkFlagRequired("expires")
	couponCmd.AddCommand(couponAddCmd)

	allowlistAddCmd.Flags().StringVar(&allowEmail, "email", "", "email address (required)")
	allowlistAddCmd.Flags().StringVar(&allowFrom, "from", "", "start of the validity window")
	allowlistAddCmd.Flags().StringVar(&allowUntil, "until", "", "end of the validity window")
	allowlistAddCmd.Flags().StringVar(&allowNote, "note", "", "free-form note")
	allowlistAddCmd.Flags().BoolVar(&allowActive, "active", true, "whether the entry grants bypass")
	_ = allowlistAddCmd.MarkFlagRequired("email")
	allowlistCmd.AddCommand(allowlistAddCmd)
}

// parseWhen accepts RFC 3339 timestamps or plain dates (midnight UTC).
func parseWhen(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t, nil
	}
	t, err := time.Parse("2006-01-02", raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid time %q: want RFC 3339 or YYYY-MM-DD", raw)
	}
	return t.UTC(), nil
}

func runCouponAdd(cmd *cobra.Command, args []string) error {
	code := strings.TrimSpace(couponCode)
	if code == "" {
		return fmt.Errorf("--code is required")
	}
	if couponUses < 0 {
		return fmt.Errorf("--uses must be >= 0")
	}
	expires, err := parseWhen(couponExpires)
	if err != nil {
		return err
	}

	svc, err := openDB()
	if err != nil {
		return err
	}
	defer svc.Close()

	r := repos.New(svc.DB(), log)
	c, err := r.Access.UpsertCoupon(dbctx.Context{Ctx: cmd.Context()}, &types.Coupon{
		Code:          code,
		Active:        couponActive,
		Expires:       expires,
		UsesRemaining: couponUses,
	})
	if err != nil {
		return fmt.Errorf("save coupon: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "coupon %s: %d uses, expires %s, active=%t\n",
		c.Code, c.UsesRemaining, c.Expires.Format(time.RFC3339), c.Active)
	return nil
}

func runAllowlistAdd(cmd *cobra.Command, args []string) error {
	email := strings.ToLower(strings.TrimSpace(allowEmail))
	if email == "" {
		return fmt.Errorf("--email is required")
	}
	from := time.Now().UTC()
	if allowFrom != "" {
		t, err := parseWhen(allowFrom)
		if err != nil {
			return err
		}
		from = t
	}
	var until *time.Time
	if allowUntil != "" {
		t, err := parseWhen(allowUntil)
		if err != nil {
			return err
		}
		if !t.After(from) {
			return fmt.Errorf("--until must be after --from")
		}
		until = &t
	}

	svc, err := openDB()
	if err != nil {
		return err
	}
	defer svc.Close()

	r := repos.New(svc.DB(), log)
	v, err := r.Access.UpsertValidEmail(dbctx.Context{Ctx: cmd.Context()}, &types.ValidEmail{
		Email:      email,
		Active:     allowActive,
		ValidFrom:  from,
		ValidUntil: until,
		Note:       allowNote,
	})
	if err != nil {
		return fmt.Errorf("save allow-list entry: %w", err)
	}
	window := "no expiry"
	if v.ValidUntil != nil {
		window = "until " + v.ValidUntil.Format(time.RFC3339)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "allow-listed %s from %s, %s, active=%t\n",
		v.Email, v.ValidFrom.Format(time.RFC3339), window, v.Active)
	return nil
}
