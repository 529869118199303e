// Command aiprotocol is a small operator CLI over the protocol package:
// it validates manifest files and prints the compiled provider-native
// request body for a sample unified request, without any embedded
// provider knowledge of its own.
package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/hiddenpath/ai-protocol-go/message"
	"github.com/hiddenpath/ai-protocol-go/protocol"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func main() {
	_ = godotenv.Load()

	log, _ := zap.NewProduction()
	defer log.Sync()

	root := &cobra.Command{
		Use:   "aiprotocol",
		Short: "Inspect and validate provider manifests",
	}
	root.AddCommand(newValidateCmd(log), newCompileCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newValidateCmd(log *zap.Logger) *cobra.Command {
	var root string
	cmd := &cobra.Command{
		Use:   "validate <manifest-name>",
		Short: "Load and validate a manifest by name",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			loader, err := protocol.NewLoader([]string{root})
			if err != nil {
				return err
			}
			m, err := loader.Load(args[0])
			if err != nil {
				return err
			}
			log.Info("manifest is valid", zap.String("id", m.ID), zap.String("protocol_version", m.ProtocolVersion))
			return nil
		},
	}
	cmd.Flags().StringVar(&root, "root", "./manifests", "directory to resolve manifest files from")
	return cmd
}

func newCompileCmd() *cobra.Command {
	var root, model, text string
	cmd := &cobra.Command{
		Use:   "compile <manifest-name>",
		Short: "Compile a one-message sample request and print the provider-native JSON body",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			loader, err := protocol.NewLoader([]string{root})
			if err != nil {
				return err
			}
			m, err := loader.Load(args[0])
			if err != nil {
				return err
			}
			req := &message.Request{
				Model:    model,
				Messages: []message.Message{{Role: message.RoleUser, Text: text}},
			}
			out, err := protocol.NewCompiler(m).Compile(req)
			if err != nil {
				return err
			}
			var pretty any
			if err := json.Unmarshal(out, &pretty); err != nil {
				return err
			}
			encoded, err := json.MarshalIndent(pretty, "", "  ")
			if err != nil {
				return err
			}
			fmt.Println(string(encoded))
			return nil
		},
	}
	cmd.Flags().StringVar(&root, "root", "./manifests", "directory to resolve manifest files from")
	cmd.Flags().StringVar(&model, "model", "", "model name to put in the compiled request")
	cmd.Flags().StringVar(&text, "text", "hello", "sample user message text")
	return cmd
}
