package main

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/leadmap/internal/classify"
	"github.com/sells-group/leadmap/internal/config"
	"github.com/sells-group/leadmap/internal/leads"
)

func TestRootCommand_HasSubcommands(t *testing.T) {
	names := make(map[string]bool)
	for _, c := range rootCmd.Commands() {
		names[c.Name()] = true
	}

	for _, name := range []string{"search", "classify", "credits", "migrate", "serve"} {
		assert.True(t, names[name], "expected subcommand %q not found", name)
	}
}

func TestRootCommand_Metadata(t *testing.T) {
	assert.Equal(t, "leadmap", rootCmd.Use)
	assert.NotEmpty(t, rootCmd.Short)
	assert.NotEmpty(t, rootCmd.Long)
}

func TestSearchCommand_Flags(t *testing.T) {
	for _, name := range []string{"query", "north", "south", "east", "west", "out", "sink", "account", "filter"} {
		assert.NotNil(t, searchCmd.Flags().Lookup(name), "search should have --%s flag", name)
	}
}

func TestCreditsCommand_HasSubcommands(t *testing.T) {
	names := make(map[string]bool)
	for _, c := range creditsCmd.Commands() {
		names[c.Name()] = true
	}
	for _, name := range []string{"balance", "grant", "checkout", "fulfill", "history"} {
		assert.True(t, names[name], "credits should have subcommand %q", name)
	}

	require.NotNil(t, creditsCmd.PersistentFlags().Lookup("account"))
	limit := creditsHistoryCmd.Flags().Lookup("limit")
	require.NotNil(t, limit)
	assert.Equal(t, "20", limit.DefValue)
}

func TestServeCommand_Flags(t *testing.T) {
	flag := serveCmd.Flags().Lookup("port")
	require.NotNil(t, flag, "serve command should have --port flag")
	assert.Equal(t, "0", flag.DefValue)
}

func TestResolveOut(t *testing.T) {
	prev := cfg
	t.Cleanup(func() { cfg = prev })

	cfg = nil
	assert.Equal(t, "leads.csv", resolveOut(""))
	assert.Equal(t, "x.xlsx", resolveOut("x.xlsx"))

	cfg = &config.Config{Export: config.ExportConfig{Filename: "plumbers.csv"}}
	assert.Equal(t, "plumbers.csv", resolveOut(""))
}

func TestParseKeyPolicy(t *testing.T) {
	p, err := parseKeyPolicy("")
	require.NoError(t, err)
	assert.Equal(t, leads.KeyPolicyUnique, p)

	p, err = parseKeyPolicy("drop")
	require.NoError(t, err)
	assert.Equal(t, leads.KeyPolicyDrop, p)

	_, err = parseKeyPolicy("merge")
	assert.Error(t, err)
}

func TestInitSink_Unknown(t *testing.T) {
	_, err := initSink("hubspot")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown sink")
}

func TestInitSink_MissingConfig(t *testing.T) {
	prev := cfg
	t.Cleanup(func() { cfg = prev })
	cfg = &config.Config{}

	_, err := initSink("notion")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "LEADMAP_NOTION_TOKEN")

	_, err = initSink("salesforce")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "LEADMAP_SALESFORCE_CLIENT_ID")
}

func TestWriteClassified(t *testing.T) {
	rows := classifyURLs(classify.DefaultTable(), []string{"https://www.instagram.com/joes", "https://joes.com"})

	var table bytes.Buffer
	require.NoError(t, writeClassified(&table, rows, false))
	assert.Contains(t, table.String(), "URL")
	assert.Contains(t, table.String(), "social_media")
	assert.Contains(t, table.String(), "real_website")

	var js bytes.Buffer
	require.NoError(t, writeClassified(&js, rows, true))
	var got []classifiedURL
	require.NoError(t, json.Unmarshal(js.Bytes(), &got))
	require.Len(t, got, 2)
	assert.Equal(t, "instagram", got[0].Platform)
	assert.True(t, got[1].Genuine)
}
