package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"dexvm/dex"
	"dexvm/internal/debugtui"
)

var debugCmd = &cobra.Command{
	Use:   "debug [method]",
	Short: "Single-step a method on the installed extension's main class",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		b, err := openInstalled()
		if err != nil {
			return err
		}
		b.Init(true)

		methodName := args[0]
		mainDesc := b.MainDescriptor()
		method := findMethod(b.Classes(), mainDesc, methodName)
		if method == nil {
			return fmt.Errorf("no method %q on %s", methodName, mainDesc)
		}

		frame := b.Executor().NewRunFrame(mainDesc, method, nil)
		return debugtui.Run(b.Executor(), frame, mainDesc, methodName)
	},
}

func findMethod(classes []dex.Class, classDesc, name string) *dex.Method {
	for i := range classes {
		if classes[i].Descriptor != classDesc {
			continue
		}
		for j := range classes[i].DirectMethods {
			if classes[i].DirectMethods[j].Name == name {
				return &classes[i].DirectMethods[j]
			}
		}
		for j := range classes[i].VirtualMethods {
			if classes[i].VirtualMethods[j].Name == name {
				return &classes[i].VirtualMethods[j]
			}
		}
	}
	return nil
}
