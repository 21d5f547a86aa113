package cmd

import (
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Run database migrations and exit",
	Run:   runMigrate,
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}

func runMigrate(_ *cobra.Command, _ []string) {
	// initApp already ran the schema migration; this command exists so
	// deployments can migrate explicitly before rolling new instances.
	logrus.Info("[MIGRATION] Schema is up to date.")
	StopApp()
}
