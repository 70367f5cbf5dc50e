// Command dexvm installs and runs DEX-packaged extensions against the
// interpreter in this module: install a .dex file into a class store, then
// ask its installed extension for its name, check its declared user agent,
// invoke an arbitrary method on it, or single-step one under the debugger.
package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"dexvm/bridge"
)

var (
	outDir      string
	debug       bool
	hostContext string
)

var rootCmd = &cobra.Command{
	Use:   "dexvm",
	Short: "Install and run DEX extensions",
	Long:  "dexvm decodes DEX-packaged extensions, persists them to a class store, and runs their methods under a register-machine interpreter.",
}

var installCmd = &cobra.Command{
	Use:   "install [dex-file]",
	Short: "Decode a DEX file and persist its classes to the store",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		raw, err := os.ReadFile(args[0])
		if err != nil {
			return fmt.Errorf("read %s: %w", args[0], err)
		}

		b, err := bridge.New(outDir, debugWriter())
		if err != nil {
			return err
		}
		b.Init(debug)
		if err := b.InstallExtension(raw); err != nil {
			return err
		}

		fmt.Printf("installed %d classes (%s) -> %s\n", len(b.Classes()), b.GetDexVersion(), outDir)
		fmt.Printf("main class: %s\n", b.MainDescriptor())
		return nil
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the installed extension's DEX format version",
	RunE: func(cmd *cobra.Command, args []string) error {
		b, err := openInstalled()
		if err != nil {
			return err
		}
		fmt.Println(b.GetDexVersion())
		return nil
	},
}

var getNameCmd = &cobra.Command{
	Use:   "get-name",
	Short: "Construct the installed extension's main class and call getName",
	RunE: func(cmd *cobra.Command, args []string) error {
		b, err := openInstalled()
		if err != nil {
			return err
		}
		b.Init(debug)
		name, err := b.ExtensionGetName(bridge.HostContext{Data: hostContext})
		if err != nil {
			return err
		}
		fmt.Println(name)
		return nil
	},
}

var isUserAgentCmd = &cobra.Command{
	Use:   "is-user-agent-equal",
	Short: "Call the installed extension's isCorrectUserAgent",
	RunE: func(cmd *cobra.Command, args []string) error {
		b, err := openInstalled()
		if err != nil {
			return err
		}
		b.Init(debug)
		ok, err := b.ExtensionIsUserAgentEqual()
		if err != nil {
			return err
		}
		fmt.Println(ok)
		return nil
	},
}

var callCmd = &cobra.Command{
	Use:   "call [method]",
	Short: "Invoke an arbitrary method on the installed extension's main class",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		b, err := openInstalled()
		if err != nil {
			return err
		}
		b.Init(debug)
		result, err := b.ExtensionCallMethod(args[0])
		if err != nil {
			return err
		}
		fmt.Println(result)
		return nil
	},
}

func debugWriter() io.Writer {
	if debug {
		return os.Stderr
	}
	return nil
}

func openInstalled() (*bridge.Bridge, error) {
	b, err := bridge.New(outDir, debugWriter())
	if err != nil {
		return nil, err
	}
	if err := b.Load(); err != nil {
		return nil, err
	}
	return b, nil
}

func init() {
	rootCmd.PersistentFlags().StringVar(&outDir, "out", "./out", "class store directory")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable instruction-level tracing")
	rootCmd.PersistentFlags().StringVar(&hostContext, "context", "", "host-context value passed to the extension's constructor on get-name")

	rootCmd.AddCommand(installCmd)
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(getNameCmd)
	rootCmd.AddCommand(isUserAgentCmd)
	rootCmd.AddCommand(callCmd)
	rootCmd.AddCommand(debugCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}
