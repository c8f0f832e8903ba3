package cmd

import (
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/dbsmedya/gocontacts/internal/mapping"
)

var fieldsFormat string

var fieldsCmd = &cobra.Command{
	Use:   "fields",
	Short: "Show the field mapping table",
	Long: `Fields prints how each contact document field is stored: its storage
type, its columns and the sub-type codes it accepts.

Examples:
  gocontacts fields
  gocontacts fields --format yaml`,
	RunE: runFields,
}

func init() {
	fieldsCmd.Flags().StringVar(&fieldsFormat, "format", "table", "Output format (table, yaml)")
	rootCmd.AddCommand(fieldsCmd)
}

// fieldView is the exported form of a field mapping.
type fieldView struct {
	Name        string            `yaml:"name"`
	StorageType string            `yaml:"storage_type"`
	MultiValued bool              `yaml:"multi_valued"`
	Columns     yaml.Node         `yaml:"columns"`
	TypeColumn  string            `yaml:"type_column,omitempty"`
	TypeCodes   map[string]int    `yaml:"type_codes,omitempty"`
	Primary     map[string]string `yaml:"primary,omitempty"`
	Protocol    string            `yaml:"protocol_column,omitempty"`
	Protocols   map[string]int    `yaml:"protocol_codes,omitempty"`
}

// columnsNode keeps the write order of columns in YAML output.
func columnsNode(m mapping.FieldMapping) yaml.Node {
	node := yaml.Node{Kind: yaml.MappingNode}
	for _, key := range m.ColumnKeys() {
		col, _ := m.Column(key)
		node.Content = append(node.Content,
			&yaml.Node{Kind: yaml.ScalarNode, Value: key},
			&yaml.Node{Kind: yaml.ScalarNode, Value: col},
		)
	}
	return node
}

func viewOf(m mapping.FieldMapping) fieldView {
	v := fieldView{
		Name:        m.Name,
		StorageType: m.StorageType,
		MultiValued: m.MultiValued,
		Columns:     columnsNode(m),
		TypeColumn:  m.TypeColumn,
		TypeCodes:   m.TypeCodes,
		Protocol:    m.ProtocolColumn,
		Protocols:   m.ProtocolCodes,
	}
	if m.Primary != nil {
		v.Primary = map[string]string{"primary": m.Primary.Primary, "super_primary": m.Primary.SuperPrimary}
	}
	return v
}

func columnSummary(m mapping.FieldMapping) string {
	parts := make([]string, 0, len(m.ColumnKeys()))
	for _, key := range m.ColumnKeys() {
		col, _ := m.Column(key)
		parts = append(parts, key+"="+col)
	}
	return strings.Join(parts, ",")
}

func typeSummary(m mapping.FieldMapping) string {
	if !m.HasTypes() {
		return ""
	}
	labels := make([]string, 0, len(m.TypeCodes))
	for label := range m.TypeCodes {
		labels = append(labels, label)
	}
	sort.Slice(labels, func(i, j int) bool { return m.TypeCodes[labels[i]] < m.TypeCodes[labels[j]] })
	return m.TypeColumn + ":" + strings.Join(labels, "|")
}

func runFields(cmd *cobra.Command, args []string) error {
	all := mapping.Default().All()

	switch fieldsFormat {
	case "yaml":
		views := make([]fieldView, 0, len(all))
		for _, m := range all {
			views = append(views, viewOf(m))
		}
		enc := yaml.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent(2)
		if err := enc.Encode(views); err != nil {
			return fmt.Errorf("failed to encode fields: %w", err)
		}
		return enc.Close()

	case "table":
		rows := make([][]string, 0, len(all))
		for _, m := range all {
			multi := "no"
			if m.MultiValued {
				multi = "yes"
			}
			rows = append(rows, []string{m.Name, m.StorageType, multi, columnSummary(m), typeSummary(m)})
		}
		renderTable(cmd.OutOrStdout(), []string{"FIELD", "STORAGE TYPE", "MULTI", "COLUMNS", "TYPES"}, rows)
		return nil

	default:
		return fmt.Errorf("unknown format %q (want table or yaml)", fieldsFormat)
	}
}
