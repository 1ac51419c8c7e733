// Package setup is the interactive configuration wizard. It collects the
// network environment, contract addresses and liquidity nodes and writes
// them to config.yaml.
package setup

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"
	"gopkg.in/yaml.v3"

	"github.com/dobfi/dobswap/config"
	"github.com/dobfi/dobswap/internal/domain"
)

var (
	subtle    = lipgloss.AdaptiveColor{Light: "#D9DCCF", Dark: "#383838"}
	highlight = lipgloss.AdaptiveColor{Light: "#874BFD", Dark: "#7D56F4"}
	special   = lipgloss.AdaptiveColor{Light: "#43BF6D", Dark: "#73F59F"}

	headerStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("205")).
			Background(highlight).
			Padding(1, 2).
			Bold(true).
			MarginBottom(1)

	stepStyle = lipgloss.NewStyle().
			Foreground(special).
			Bold(true).
			MarginTop(1).
			MarginBottom(0)
)

func header() {
	fmt.Print("\033[H\033[2J") // Clear screen
	fmt.Println(headerStyle.Render("DOBSWAP CONFIG WIZARD"))
}

// RunTUI launches the terminal configuration wizard.
func RunTUI() error {
	var (
		network     string
		rpcEndpoint string
		oracleAddr  string
		poolAddr    string
		tokenAddr   string
		usdcAddr    string
		nodesStr    string
		userAddr    string
		refreshStr  string
		webAddr     string
		confirm     bool
	)

	// defaults
	refreshStr = "30s"
	webAddr = ":8080"

	header()
	fmt.Println(lipgloss.NewStyle().Foreground(subtle).Render("Point the client at your ledger environment.\n"))

	fmt.Println(stepStyle.Render("STEP 1: NETWORK"))
	err := huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("Select ledger network").
				Options(
					huh.NewOption("Testnet", config.NetworkTestnet),
					huh.NewOption("Mainnet", config.NetworkMainnet),
				).
				Value(&network),
			huh.NewInput().
				Title("RPC endpoint override").
				Description("Leave empty to use the network default").
				Value(&rpcEndpoint),
		),
	).Run()
	if err != nil {
		return err
	}

	header()
	fmt.Println(stepStyle.Render("STEP 2: CONTRACTS"))
	err = huh.NewForm(
		huh.NewGroup(
			huh.NewInput().Title("Oracle contract").Value(&oracleAddr).Validate(validateAddress),
			huh.NewInput().Title("Pool contract").Value(&poolAddr).Validate(validateAddress),
			huh.NewInput().Title("Token contract").Value(&tokenAddr).Validate(validateAddress),
			huh.NewInput().Title("USDC contract").Value(&usdcAddr).Validate(validateAddress),
			huh.NewInput().
				Title("Liquidity nodes").
				Description("Comma-separated addresses, optional").
				Value(&nodesStr),
		),
	).Run()
	if err != nil {
		return err
	}

	header()
	fmt.Println(stepStyle.Render("STEP 3: ACCOUNT & TIMING"))
	err = huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("User account address").
				Description("G... address whose balances appear in the snapshot, optional").
				Value(&userAddr),
			huh.NewInput().
				Title("Refresh interval").
				Description("Duration string (e.g. 30s, 1m)").
				Value(&refreshStr).
				Validate(func(s string) error {
					_, err := time.ParseDuration(s)
					return err
				}),
			huh.NewInput().
				Title("Web listen address").
				Value(&webAddr),
		),
	).Run()
	if err != nil {
		return err
	}

	refresh, err := time.ParseDuration(refreshStr)
	if err != nil {
		return err
	}

	cfg := config.Config{
		Network:     network,
		RPCEndpoint: strings.TrimSpace(rpcEndpoint),
		Contracts: domain.ContractRefs{
			Oracle:      strings.TrimSpace(oracleAddr),
			Pool:        strings.TrimSpace(poolAddr),
			Token:       strings.TrimSpace(tokenAddr),
			USDC:        strings.TrimSpace(usdcAddr),
			LiquidNodes: splitNodes(nodesStr),
		},
		UserAddress:     strings.TrimSpace(userAddr),
		RefreshInterval: refresh,
		WebAddr:         webAddr,
	}

	header()
	fmt.Println(stepStyle.Render("STEP 4: CONFIRM"))
	preview, err := yaml.Marshal(&cfg)
	if err != nil {
		return err
	}
	fmt.Println(lipgloss.NewStyle().Foreground(subtle).Render(string(preview)))

	err = huh.NewForm(
		huh.NewGroup(
			huh.NewConfirm().
				Title("Write config.yaml?").
				Value(&confirm),
		),
	).Run()
	if err != nil {
		return err
	}
	if !confirm {
		fmt.Println("aborted, nothing written")
		return nil
	}

	if err := os.WriteFile("config.yaml", preview, 0o644); err != nil {
		return err
	}
	fmt.Println(stepStyle.Render("config.yaml written"))
	return nil
}

func validateAddress(s string) error {
	if strings.TrimSpace(s) == "" {
		return fmt.Errorf("address cannot be empty")
	}
	return nil
}

func splitNodes(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
