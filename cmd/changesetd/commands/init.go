package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/osmtools/changesetd/pkg/config"
)

var initForce bool

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize a sample configuration file",
	Long: `Initialize a sample changesetd configuration file.

By default, the configuration file is created at $XDG_CONFIG_HOME/changesetd/config.yaml.
Use --config to specify a custom path.

Examples:
  # Initialize with default location
  changesetd init

  # Initialize with custom path
  changesetd init --config /etc/changesetd/config.yaml

  # Force overwrite existing config
  changesetd init --force`,
	RunE: runInit,
}

func init() {
	initCmd.Flags().BoolVar(&initForce, "force", false, "Force overwrite existing config file")
}

func runInit(cmd *cobra.Command, args []string) error {
	configFile := GetConfigFile()

	var configPath string
	var err error

	if configFile != "" {
		// Use custom path
		err = config.InitConfigToPath(configFile, initForce)
		configPath = configFile
	} else {
		// Use default path
		configPath, err = config.InitConfig(initForce)
	}

	if err != nil {
		return fmt.Errorf("failed to initialize config: %w", err)
	}

	fmt.Printf("Configuration file created at: %s\n", configPath)
	fmt.Println("\nNext steps:")
	fmt.Println("  1. Edit the configuration file and set the database credentials")
	fmt.Println("  2. Apply the schema with: changesetd migrate")
	fmt.Println("  3. Start following the feed with: changesetd sync")

	return nil
}
