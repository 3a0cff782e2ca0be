package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"

	"github.com/ethereum/go-ethereum/common"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"

	"github.com/betbot/nftmarket/internal/devnet"
	"github.com/betbot/nftmarket/pkg/client"
	"github.com/betbot/nftmarket/pkg/config"
)

func main() {
	_ = godotenv.Load()

	app := &cli.App{
		Name:  "marketctl",
		Usage: "NFT 市场节点命令行客户端",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "node",
				Value:   "http://127.0.0.1:8080",
				Usage:   "节点地址",
				EnvVars: []string{config.EnvPrefix + "NODE"},
			},
			&cli.StringFlag{
				Name:    "as",
				Usage:   "调用方：地址，或开发账户序号（0、1、2...）",
				EnvVars: []string{config.EnvPrefix + "AS"},
			},
			&cli.StringFlag{
				Name:    "mnemonic",
				Value:   config.DefaultMnemonic,
				Usage:   "解析账户序号用的助记词",
				EnvVars: []string{config.EnvPrefix + "MNEMONIC"},
			},
		},
		Commands: []*cli.Command{
			accountsCommand,
			marketCommand,
			mintCommand,
			approveCommand,
			listCommand,
			itemCommand,
			countCommand,
			buyCommand,
			balanceCommand,
			faucetCommand,
			eventsCommand,
		},
	}
	if err := app.Run(os.Args); err != nil {
		if code := client.ErrorCode(err); code != "" {
			logrus.WithField("code", code).Fatal(err)
		}
		logrus.Fatal(err)
	}
}

// resolveAccount 地址原样返回；纯数字按开发账户序号派生
func resolveAccount(c *cli.Context, raw string) (string, error) {
	if raw == "" {
		return "", nil
	}
	if common.IsHexAddress(raw) {
		return common.HexToAddress(raw).Hex(), nil
	}
	idx, err := strconv.Atoi(raw)
	if err != nil || idx < 0 {
		return "", fmt.Errorf("无效的账户: %s", raw)
	}
	accounts, err := devnet.DeriveAccounts(c.String("mnemonic"), idx+1)
	if err != nil {
		return "", err
	}
	return accounts[idx].Address.Hex(), nil
}

func newClient(c *cli.Context) (*client.Client, error) {
	as, err := resolveAccount(c, c.String("as"))
	if err != nil {
		return nil, err
	}
	return client.New(c.String("node"), client.WithAccount(as)), nil
}

func printJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// defaultCollection 未指定 --contract 时按部署顺序推算开发节点的 NFT 合约地址
func defaultCollection(c *cli.Context) (string, error) {
	if v := c.String("contract"); v != "" {
		return v, nil
	}
	accounts, err := devnet.DeriveAccounts(c.String("mnemonic"), 1)
	if err != nil {
		return "", err
	}
	return devnet.ContractAddress(accounts[0].Address, 0).Hex(), nil
}

var contractFlag = &cli.StringFlag{Name: "contract", Usage: "NFT 合约地址（默认开发节点的合约）"}

var accountsCommand = &cli.Command{
	Name:  "accounts",
	Usage: "列出开发账户",
	Flags: []cli.Flag{&cli.IntFlag{Name: "n", Value: 10, Usage: "数量"}},
	Action: func(c *cli.Context) error {
		accounts, err := devnet.DeriveAccounts(c.String("mnemonic"), c.Int("n"))
		if err != nil {
			return err
		}
		for _, a := range accounts {
			fmt.Printf("%2d  %s  %s\n", a.Index, a.Address.Hex(), a.Path)
		}
		return nil
	},
}

var marketCommand = &cli.Command{
	Name:  "market",
	Usage: "市场参数",
	Action: func(c *cli.Context) error {
		cl, err := newClient(c)
		if err != nil {
			return err
		}
		info, err := cl.Market(c.Context)
		if err != nil {
			return err
		}
		return printJSON(info)
	},
}

var mintCommand = &cli.Command{
	Name:      "mint",
	Usage:     "铸造 NFT 给 --as 账户",
	ArgsUsage: "<uri>",
	Flags:     []cli.Flag{contractFlag},
	Action: func(c *cli.Context) error {
		cl, err := newClient(c)
		if err != nil {
			return err
		}
		contract, err := defaultCollection(c)
		if err != nil {
			return err
		}
		tok, err := cl.Mint(c.Context, contract, c.Args().First())
		if err != nil {
			return err
		}
		return printJSON(tok)
	},
}

var approveCommand = &cli.Command{
	Name:  "approve",
	Usage: "授权市场（或 --operator）管理 --as 账户的全部 NFT",
	Flags: []cli.Flag{
		contractFlag,
		&cli.StringFlag{Name: "operator", Usage: "被授权地址（默认市场地址）"},
		&cli.BoolFlag{Name: "revoke", Usage: "撤销授权"},
	},
	Action: func(c *cli.Context) error {
		cl, err := newClient(c)
		if err != nil {
			return err
		}
		contract, err := defaultCollection(c)
		if err != nil {
			return err
		}
		operator := c.String("operator")
		if operator == "" {
			info, err := cl.Market(c.Context)
			if err != nil {
				return err
			}
			operator = info.Address
		}
		if err := cl.SetApprovalForAll(c.Context, contract, operator, !c.Bool("revoke")); err != nil {
			return err
		}
		fmt.Printf("operator=%s approved=%v\n", operator, !c.Bool("revoke"))
		return nil
	},
}

var listCommand = &cli.Command{
	Name:      "list",
	Usage:     "挂单出售",
	ArgsUsage: "<token-id> <price>",
	Flags:     []cli.Flag{contractFlag},
	Action: func(c *cli.Context) error {
		if c.NArg() != 2 {
			return cli.Exit("用法: marketctl list <token-id> <price>", 2)
		}
		cl, err := newClient(c)
		if err != nil {
			return err
		}
		contract, err := defaultCollection(c)
		if err != nil {
			return err
		}
		item, err := cl.List(c.Context, contract, c.Args().Get(0), c.Args().Get(1))
		if err != nil {
			return err
		}
		return printJSON(item)
	},
}

func itemIDArg(c *cli.Context) (uint64, error) {
	id, err := strconv.ParseUint(c.Args().First(), 10, 64)
	if err != nil {
		return 0, cli.Exit("需要 item id", 2)
	}
	return id, nil
}

var itemCommand = &cli.Command{
	Name:      "item",
	Usage:     "查询挂单",
	ArgsUsage: "<item-id>",
	Action: func(c *cli.Context) error {
		id, err := itemIDArg(c)
		if err != nil {
			return err
		}
		cl, err := newClient(c)
		if err != nil {
			return err
		}
		item, err := cl.GetItem(c.Context, id)
		if err != nil {
			return err
		}
		return printJSON(item)
	},
}

var countCommand = &cli.Command{
	Name:  "count",
	Usage: "挂单总数",
	Action: func(c *cli.Context) error {
		cl, err := newClient(c)
		if err != nil {
			return err
		}
		n, err := cl.ItemCount(c.Context)
		if err != nil {
			return err
		}
		fmt.Println(n)
		return nil
	},
}

var buyCommand = &cli.Command{
	Name:      "buy",
	Usage:     "购买挂单；未指定 --value 时按应付总额支付",
	ArgsUsage: "<item-id>",
	Flags:     []cli.Flag{&cli.StringFlag{Name: "value", Usage: "支付金额（wei 或 0.01eth）"}},
	Action: func(c *cli.Context) error {
		id, err := itemIDArg(c)
		if err != nil {
			return err
		}
		cl, err := newClient(c)
		if err != nil {
			return err
		}
		value := c.String("value")
		if value == "" {
			total, err := cl.TotalPayable(c.Context, id)
			if err != nil {
				return err
			}
			value = total.Wei
		}
		receipt, err := cl.Purchase(c.Context, id, value)
		if err != nil {
			return err
		}
		return printJSON(receipt)
	},
}

var balanceCommand = &cli.Command{
	Name:      "balance",
	Usage:     "查询余额（默认 --as 账户）",
	ArgsUsage: "[address|index]",
	Action: func(c *cli.Context) error {
		cl, err := newClient(c)
		if err != nil {
			return err
		}
		raw := c.Args().First()
		if raw == "" {
			raw = c.String("as")
		}
		addr, err := resolveAccount(c, raw)
		if err != nil {
			return err
		}
		if addr == "" {
			return cli.Exit("需要账户", 2)
		}
		bal, err := cl.Balance(c.Context, addr)
		if err != nil {
			return err
		}
		fmt.Printf("%s  %s ETH (%s wei)\n", addr, bal.Eth, bal.Wei)
		return nil
	},
}

var faucetCommand = &cli.Command{
	Name:      "faucet",
	Usage:     "给账户充值（仅开发节点）",
	ArgsUsage: "<address|index> <value>",
	Action: func(c *cli.Context) error {
		if c.NArg() != 2 {
			return cli.Exit("用法: marketctl faucet <address|index> <value>", 2)
		}
		cl, err := newClient(c)
		if err != nil {
			return err
		}
		addr, err := resolveAccount(c, c.Args().Get(0))
		if err != nil {
			return err
		}
		bal, err := cl.Faucet(c.Context, addr, c.Args().Get(1))
		if err != nil {
			return err
		}
		fmt.Printf("%s  %s ETH\n", addr, bal.Eth)
		return nil
	},
}

var eventsCommand = &cli.Command{
	Name:  "events",
	Usage: "拉取事件日志",
	Flags: []cli.Flag{
		&cli.Uint64Flag{Name: "since", Usage: "只返回 seq 大于该值的事件"},
		&cli.IntFlag{Name: "limit", Value: 100},
	},
	Action: func(c *cli.Context) error {
		cl, err := newClient(c)
		if err != nil {
			return err
		}
		page, err := cl.Events(c.Context, c.Uint64("since"), c.Int("limit"))
		if err != nil {
			return err
		}
		return printJSON(page)
	},
}
