package cmd

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Priya8975/capi-relay/internal/conversions"
	"github.com/Priya8975/capi-relay/internal/domain"
	"github.com/Priya8975/capi-relay/internal/engine"
)

var testConnectionCmd = &cobra.Command{
	Use:   "test-connection",
	Short: "Send a test event and report whether the pixel and token work",
	RunE:  runTestConnection,
}

var sendTestEventCmd = &cobra.Command{
	Use:   "send-test-event",
	Short: "Normalize and send one event, printing the dispatch result",
	RunE:  runSendTestEvent,
}

func init() {
	rootCmd.AddCommand(testConnectionCmd)
	rootCmd.AddCommand(sendTestEventCmd)

	sendTestEventCmd.Flags().String("event-name", "Lead", "event name")
	sendTestEventCmd.Flags().String("email", "", "customer email (hashed before sending)")
	sendTestEventCmd.Flags().String("test-event-code", "", "test event code (overrides TEST_EVENT_CODE)")
	sendTestEventCmd.Flags().String("custom-data", "{}", "custom data as a JSON object")
}

func runTestConnection(cmd *cobra.Command, args []string) error {
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}

	result := conversions.NewVerifier(cfg.Conversions(), logger).Test(cmd.Context())
	if err := printJSON(cmd, result); err != nil {
		return err
	}
	if !result.Success {
		return fmt.Errorf("connection test failed: %s", result.Message)
	}
	return nil
}

func runSendTestEvent(cmd *cobra.Command, args []string) error {
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}

	name, _ := cmd.Flags().GetString("event-name")
	email, _ := cmd.Flags().GetString("email")
	testCode, _ := cmd.Flags().GetString("test-event-code")
	rawData, _ := cmd.Flags().GetString("custom-data")

	var data domain.CustomData
	dec := json.NewDecoder(strings.NewReader(rawData))
	dec.UseNumber()
	if err := dec.Decode(&data); err != nil {
		return fmt.Errorf("parsing --custom-data: %w", err)
	}

	ev, err := engine.NewNormalizer().Normalize(engine.RawEvent{
		Name:       name,
		CustomData: data,
		UserData:   &domain.UserData{Email: email},
	}, domain.RequestContext{UserAgent: conversions.DefaultUserAgent})
	if err != nil {
		return err
	}

	dispatcher := conversions.NewDispatcher(cfg.Conversions(), logger,
		conversions.WithVerifier(conversions.NewVerifier(cfg.Conversions(), logger)))
	result := dispatcher.Send(cmd.Context(), ev, testCode)
	if err := printJSON(cmd, result); err != nil {
		return err
	}
	if !result.Success {
		return fmt.Errorf("send failed: %s", result.ErrorKind)
	}
	return nil
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
