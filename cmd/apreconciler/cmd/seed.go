package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"invoice-reconciliation-service/pkg/logger"

	"invoice-reconciliation-service/internal/models"
	"invoice-reconciliation-service/internal/store"
)

var seedFile string

// seedFixture is the JSON shape the seed command loads
type seedFixture struct {
	Vendors        []*models.Vendor            `json:"vendors"`
	Profiles       []*models.VendorRiskProfile `json:"profiles"`
	PurchaseOrders []*models.PurchaseOrder     `json:"purchase_orders"`
	Invoices       []*models.Invoice           `json:"invoices"`
}

// seedCmd loads fixture data into the database
var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Load vendors, purchase orders and invoices from a JSON fixture",
	RunE:  runSeed,
}

func init() {
	rootCmd.AddCommand(seedCmd)

	seedCmd.Flags().StringVarP(&seedFile, "file", "f", "", "fixture file to load (required)")
	seedCmd.MarkFlagRequired("file")
}

func runSeed(cmd *cobra.Command, args []string) error {
	handler := NewCLIErrorHandler()

	cfg, err := loadConfigAndLogger()
	if err != nil {
		os.Exit(handler.HandleError(err))
	}
	log := logger.GetGlobalLogger().WithComponent("seed")

	data, err := os.ReadFile(seedFile)
	if err != nil {
		return fmt.Errorf("read fixture file: %w", err)
	}

	var fixture seedFixture
	if err := json.Unmarshal(data, &fixture); err != nil {
		return fmt.Errorf("parse fixture file: %w", err)
	}

	st, err := store.Open(cfg.DatabasePath, logger.GetGlobalLogger())
	if err != nil {
		os.Exit(handler.HandleError(err))
	}
	defer st.Close()

	ctx := cmd.Context()
	for _, v := range fixture.Vendors {
		if err := st.SaveVendor(ctx, v); err != nil {
			os.Exit(handler.HandleError(err))
		}
	}
	for _, p := range fixture.Profiles {
		if err := st.SaveProfile(ctx, p); err != nil {
			os.Exit(handler.HandleError(err))
		}
	}
	for _, po := range fixture.PurchaseOrders {
		if err := st.SavePurchaseOrder(ctx, po); err != nil {
			os.Exit(handler.HandleError(err))
		}
	}
	for _, inv := range fixture.Invoices {
		if err := st.SaveInvoice(ctx, inv); err != nil {
			os.Exit(handler.HandleError(err))
		}
	}

	log.WithFields(logger.Fields{
		"vendors":         len(fixture.Vendors),
		"profiles":        len(fixture.Profiles),
		"purchase_orders": len(fixture.PurchaseOrders),
		"invoices":        len(fixture.Invoices),
	}).Info("Fixture loaded")

	return nil
}
