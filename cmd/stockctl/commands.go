package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/angelmondragon/stockcore/internal/adjustments"
	"github.com/angelmondragon/stockcore/internal/engine"
	"github.com/angelmondragon/stockcore/internal/inventory"
	"github.com/angelmondragon/stockcore/internal/ledger"
	"github.com/angelmondragon/stockcore/internal/pricing"
	"github.com/angelmondragon/stockcore/internal/transfers"
	"github.com/angelmondragon/stockcore/pkg/db/models"
	"github.com/angelmondragon/stockcore/pkg/enums"
	pkgerrors "github.com/angelmondragon/stockcore/pkg/errors"
	"github.com/angelmondragon/stockcore/pkg/types"
)

type command struct {
	usage string
	// tenantScoped commands require -tenant.
	tenantScoped bool
	run          func(ctx context.Context, env *cmdEnv, args []string) (any, error)
}

type cmdEnv struct {
	engine *engine.Engine
	tenant *engine.Tenant
}

var commands = map[string]command{
	"stock":    {usage: "-location ID -product ID [-variant ID]", tenantScoped: true, run: stockCmd},
	"receive":  {usage: "-location ID -product ID [-variant ID] -qty N [-notes TEXT]", tenantScoped: true, run: receiveCmd},
	"adjust":   {usage: "-location ID -product ID [-variant ID] -physical N -reason TEXT", tenantScoped: true, run: adjustCmd},
	"transfer": {usage: "-from ID -to ID -product ID [-variant ID] -qty N", tenantScoped: true, run: transferCmd},
	"price":    {usage: "-product ID [-variant ID] -location ID [-type standard|wholesale|member|promo]", tenantScoped: true, run: priceCmd},
	"rebuild":  {usage: "(all tenants when -tenant is omitted)", run: rebuildCmd},
}

// dispatch runs one subcommand and writes its types.Result as JSON to out.
// The returned error is only set for usage problems; domain failures are
// reported in the Result.
func dispatch(ctx context.Context, e *engine.Engine, tenantFlag string, args []string, out io.Writer) (bool, error) {
	if len(args) == 0 {
		return false, errors.New("missing command")
	}
	cmd, ok := commands[args[0]]
	if !ok {
		return false, fmt.Errorf("unknown command %q", args[0])
	}

	env := &cmdEnv{engine: e}
	if tenantFlag != "" {
		tenantID, err := uuid.Parse(tenantFlag)
		if err != nil {
			return false, fmt.Errorf("invalid -tenant: %w", err)
		}
		if env.tenant, err = e.ForTenant(tenantID); err != nil {
			return false, err
		}
	} else if cmd.tenantScoped {
		return false, fmt.Errorf("%s requires -tenant", args[0])
	}

	data, err := cmd.run(ctx, env, args[1:])
	var usage usageError
	if errors.As(err, &usage) {
		return false, err
	}
	res := types.OK(data)
	if err != nil {
		res = types.ResultFromError(err)
	}
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	if encErr := enc.Encode(res); encErr != nil {
		return false, encErr
	}
	return res.Success, nil
}

func usageText() string {
	names := make([]string, 0, len(commands))
	for name := range commands {
		names = append(names, name)
	}
	sort.Strings(names)
	var b strings.Builder
	b.WriteString("usage: stockctl [-tenant ID] <command> [flags]\n\ncommands:\n")
	for _, name := range names {
		fmt.Fprintf(&b, "  %-9s %s\n", name, commands[name].usage)
	}
	return b.String()
}

type usageError struct{ error }

func newFlags(name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	return fs
}

func parse(fs *flag.FlagSet, args []string) error {
	if err := fs.Parse(args); err != nil {
		return usageError{err}
	}
	return nil
}

// uuidFlag accepts an empty value as uuid.Nil.
type uuidFlag struct{ id uuid.UUID }

func (u *uuidFlag) String() string { return u.id.String() }

func (u *uuidFlag) Set(value string) error {
	if value == "" {
		u.id = uuid.Nil
		return nil
	}
	id, err := uuid.Parse(value)
	if err != nil {
		return err
	}
	u.id = id
	return nil
}

func stockCmd(ctx context.Context, env *cmdEnv, args []string) (any, error) {
	fs := newFlags("stock")
	var location, product, variant uuidFlag
	fs.Var(&location, "location", "location id")
	fs.Var(&product, "product", "product id")
	fs.Var(&variant, "variant", "variant id (default variant when omitted)")
	if err := parse(fs, args); err != nil {
		return nil, err
	}

	t := env.tenant
	variantID, err := t.Catalog.ResolveVariant(ctx, product.id, variant.id)
	if err != nil {
		return nil, err
	}
	return t.Summary(ctx, models.StockKey{
		TenantID:   t.ID,
		LocationID: location.id,
		ProductID:  product.id,
		VariantID:  variantID,
	})
}

func receiveCmd(ctx context.Context, env *cmdEnv, args []string) (any, error) {
	fs := newFlags("receive")
	var location, product, variant uuidFlag
	fs.Var(&location, "location", "location id")
	fs.Var(&product, "product", "product id")
	fs.Var(&variant, "variant", "variant id")
	qty := fs.Int("qty", 0, "units received")
	notes := fs.String("notes", "", "free-text note")
	if err := parse(fs, args); err != nil {
		return nil, err
	}

	t := env.tenant
	if _, err := t.Catalog.GetLocation(ctx, location.id); err != nil {
		return nil, err
	}
	variantID, err := t.Catalog.ResolveVariant(ctx, product.id, variant.id)
	if err != nil {
		return nil, err
	}
	// each manual receipt gets its own reference so it can be traced later
	referenceID := uuid.New()
	input := ledger.RecordMovementInput{
		LocationID:    location.id,
		ProductID:     product.id,
		VariantID:     variantID,
		MovementType:  enums.MovementTypeReceipt,
		Quantity:      *qty,
		ReferenceType: enums.ReferenceTypeManual,
		ReferenceID:   &referenceID,
	}
	if *notes != "" {
		input.Notes = notes
	}
	var movement *models.StockMovement
	err = t.Run(ctx, func(ctx context.Context) error {
		var recErr error
		movement, recErr = t.Ledger.Record(ctx, nil, input)
		return recErr
	})
	return movement, err
}

func adjustCmd(ctx context.Context, env *cmdEnv, args []string) (any, error) {
	fs := newFlags("adjust")
	var location, product, variant uuidFlag
	fs.Var(&location, "location", "location id")
	fs.Var(&product, "product", "product id")
	fs.Var(&variant, "variant", "variant id")
	physical := fs.Int("physical", -1, "counted quantity")
	reason := fs.String("reason", "", "why the count differs")
	if err := parse(fs, args); err != nil {
		return nil, err
	}

	t := env.tenant
	var result *adjustments.AdjustResult
	err := t.Run(ctx, func(ctx context.Context) error {
		var adjErr error
		result, adjErr = t.Adjustments.Adjust(ctx, adjustments.AdjustInput{
			LocationID:       location.id,
			ProductID:        product.id,
			VariantID:        variant.id,
			PhysicalQuantity: *physical,
			Reason:           *reason,
		})
		return adjErr
	})
	return result, err
}

func transferCmd(ctx context.Context, env *cmdEnv, args []string) (any, error) {
	fs := newFlags("transfer")
	var from, to, product, variant uuidFlag
	fs.Var(&from, "from", "source location id")
	fs.Var(&to, "to", "destination location id")
	fs.Var(&product, "product", "product id")
	fs.Var(&variant, "variant", "variant id")
	qty := fs.Int("qty", 0, "units to move")
	if err := parse(fs, args); err != nil {
		return nil, err
	}

	t := env.tenant
	var result *transfers.TransferResult
	err := t.Run(ctx, func(ctx context.Context) error {
		var trErr error
		result, trErr = t.Transfers.Transfer(ctx, transfers.TransferInput{
			SourceLocationID: from.id,
			DestLocationID:   to.id,
			Items:            []transfers.Item{{ProductID: product.id, VariantID: variant.id, Quantity: *qty}},
		})
		return trErr
	})
	return result, err
}

func priceCmd(ctx context.Context, env *cmdEnv, args []string) (any, error) {
	fs := newFlags("price")
	var location, product, variant uuidFlag
	fs.Var(&location, "location", "outlet id")
	fs.Var(&product, "product", "product id")
	fs.Var(&variant, "variant", "variant id")
	priceType := fs.String("type", string(enums.PriceTypeStandard), "price type")
	if err := parse(fs, args); err != nil {
		return nil, err
	}
	pt, err := enums.ParsePriceType(*priceType)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid price type")
	}

	t := env.tenant
	variantID, err := t.Catalog.ResolveVariant(ctx, product.id, variant.id)
	if err != nil {
		return nil, err
	}
	return t.Prices.Resolve(ctx, pricing.ResolveInput{
		ProductID:  product.id,
		VariantID:  variantID,
		LocationID: location.id,
		PriceType:  pt,
	})
}

func rebuildCmd(ctx context.Context, env *cmdEnv, args []string) (any, error) {
	if err := parse(newFlags("rebuild"), args); err != nil {
		return nil, err
	}
	if env.tenant == nil {
		return env.engine.RebuildAll(ctx)
	}
	t := env.tenant
	var report *inventory.RebuildReport
	err := t.Run(ctx, func(ctx context.Context) error {
		r, rbErr := t.Inventory.Rebuild(ctx)
		report = r
		return rbErr
	})
	return report, err
}
