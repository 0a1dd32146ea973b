// apply.go creates or replaces an object from a YAML manifest.
package main

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"

	"github.com/spf13/cobra"
	"sigs.k8s.io/yaml"
)

func newApplyCommand(flags *rootFlags) *cobra.Command {
	var filename, fieldManager string
	cmd := &cobra.Command{
		Use:   "apply -f FILE",
		Short: "Create an object from a manifest, replacing it if it already exists",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := readManifest(filename)
			if err != nil {
				return err
			}
			jsonBytes, err := yaml.YAMLToJSON(raw)
			if err != nil {
				return fmt.Errorf("parse manifest: %w", err)
			}
			var obj map[string]any
			if err := json.Unmarshal(jsonBytes, &obj); err != nil {
				return fmt.Errorf("parse manifest: %w", err)
			}
			apiVersion, _ := obj["apiVersion"].(string)
			kind, _ := obj["kind"].(string)
			if apiVersion == "" || kind == "" {
				return fmt.Errorf("manifest must declare apiVersion and kind")
			}
			meta, _ := obj["metadata"].(map[string]any)
			name, _ := meta["name"].(string)
			namespace, _ := meta["namespace"].(string)
			if namespace == "" {
				namespace = flags.namespace
			}

			c, _, err := buildClient(flags)
			if err != nil {
				return err
			}
			base := c.Request().GVK(apiVersion, kind).Namespace(namespace).
				FieldManager(fieldManager).Body(jsonBytes)

			resp, err := base.Clone().Post().Do(cmd.Context())
			if err != nil {
				return err
			}
			switch {
			case !resp.IsError():
				fmt.Printf("%s/%s created\n", kind, name)
				return nil
			case resp.StatusCode() == http.StatusConflict && name != "":
				if _, err := base.Clone().Name(name).Put().DoChecked(cmd.Context()); err != nil {
					return err
				}
				fmt.Printf("%s/%s replaced\n", kind, name)
				return nil
			default:
				return resp.Err()
			}
		},
	}
	cmd.Flags().StringVarP(&filename, "filename", "f", "", "Manifest file to apply, or - for stdin")
	cmd.Flags().StringVar(&fieldManager, "field-manager", "kfl", "Field manager name recorded for this mutation")
	cobra.CheckErr(cmd.MarkFlagRequired("filename"))
	return cmd
}

func readManifest(filename string) ([]byte, error) {
	if filename == "-" {
		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			return nil, fmt.Errorf("read stdin: %w", err)
		}
		return data, nil
	}
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}
	return data, nil
}
