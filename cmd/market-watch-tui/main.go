package main

import (
	"context"
	"flag"
	"fmt"
	"math/big"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/betbot/nftmarket/pkg/client"
	"github.com/betbot/nftmarket/pkg/logger"
	"github.com/betbot/nftmarket/pkg/units"
)

const recentEvents = 12

var (
	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("15")).
			Background(lipgloss.Color("62")).
			Padding(0, 1)

	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("15"))

	offeredStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("2")) // 绿色

	soldStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("1")) // 红色

	borderStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("238")).
			Padding(0, 1)
)

// listing 本地汇总的挂单状态
type listing struct {
	id     uint64
	token  string
	price  *big.Int
	seller string
	sold   bool
	buyer  string
}

type model struct {
	cl     *client.Client
	stream *client.EventStream

	info      *client.MarketInfo
	connected bool
	err       error

	listings map[uint64]*listing
	recent   []client.Event
	volume   *big.Int
	lastSeq  uint64
	lastAt   time.Time
}

type tickMsg time.Time

type connectedMsg struct {
	info *client.MarketInfo
	err  error
}

type eventMsg client.Event

func initialModel(cl *client.Client) model {
	return model{
		cl:       cl,
		stream:   cl.NewEventStream(),
		listings: make(map[uint64]*listing),
		volume:   new(big.Int),
	}
}

func (m model) Init() tea.Cmd {
	return tea.Batch(tickCmd(), connectCmd(m.cl))
}

func tickCmd() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg { return tickMsg(t) })
}

func connectCmd(cl *client.Client) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		info, err := cl.Market(ctx)
		return connectedMsg{info: info, err: err}
	}
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			_ = m.stream.Close()
			return m, tea.Quit
		}

	case tickMsg:
		return m, tickCmd()

	case connectedMsg:
		if msg.err != nil {
			m.err = msg.err
			return m, nil
		}
		m.info = msg.info
		m.connected = true

	case eventMsg:
		m.apply(client.Event(msg))
	}
	return m, nil
}

func (m *model) apply(e client.Event) {
	m.lastSeq = e.Seq
	m.lastAt = e.At
	m.recent = append(m.recent, e)
	if len(m.recent) > recentEvents {
		m.recent = m.recent[len(m.recent)-recentEvents:]
	}
	switch {
	case e.Offered != nil:
		o := e.Offered
		m.listings[o.ItemID] = &listing{
			id:     o.ItemID,
			token:  fmt.Sprintf("%s#%s", short(o.TokenContract.Hex()), o.TokenID),
			price:  o.Price,
			seller: o.Seller.Hex(),
		}
		if m.info != nil && o.ItemID > m.info.ItemCount {
			m.info.ItemCount = o.ItemID
		}
	case e.Sold != nil:
		s := e.Sold
		if l, ok := m.listings[s.ItemID]; ok {
			l.sold = true
			l.buyer = s.Buyer.Hex()
		}
		if s.Price != nil {
			m.volume.Add(m.volume, s.Price)
		}
	}
}

func short(addr string) string {
	if len(addr) <= 12 {
		return addr
	}
	return addr[:6] + "…" + addr[len(addr)-4:]
}

func (m model) View() string {
	if m.err != nil {
		return fmt.Sprintf("错误: %v\n\n按 q 退出", m.err)
	}
	if !m.connected {
		return "正在连接...\n\n按 q 退出"
	}

	var s strings.Builder
	status := "等待事件..."
	if !m.lastAt.IsZero() {
		status = fmt.Sprintf("最近事件: %v前", time.Since(m.lastAt).Round(time.Second))
	}
	header := headerStyle.Render(fmt.Sprintf("市场: %s | 手续费: %d%% | 挂单: %d | 成交额: %s ETH | seq=%d | %s",
		short(m.info.Address), m.info.FeePercent, m.info.ItemCount, units.FormatEther(m.volume), m.lastSeq, status))
	s.WriteString(header)
	s.WriteString("\n\n")

	s.WriteString(lipgloss.JoinHorizontal(lipgloss.Top, m.renderListings(), "  ", m.renderRecent()))
	s.WriteString("\n\n按 q 退出")
	return s.String()
}

func (m model) renderListings() string {
	ids := make([]uint64, 0, len(m.listings))
	for id := range m.listings {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] > ids[j] })

	var b strings.Builder
	b.WriteString(titleStyle.Render("挂单"))
	b.WriteString("\n")
	b.WriteString(fmt.Sprintf("%-5s %-20s %-14s %-14s %s\n", "ID", "TOKEN", "PRICE(ETH)", "SELLER", "STATUS"))
	for i, id := range ids {
		if i >= 15 {
			break
		}
		l := m.listings[id]
		state := offeredStyle.Render("在售")
		if l.sold {
			state = soldStyle.Render("已售 → " + short(l.buyer))
		}
		b.WriteString(fmt.Sprintf("%-5d %-20s %-14s %-14s %s\n", l.id, l.token, units.FormatEther(l.price), short(l.seller), state))
	}
	return borderStyle.Render(b.String())
}

func (m model) renderRecent() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("最近事件"))
	b.WriteString("\n")
	for i := len(m.recent) - 1; i >= 0; i-- {
		e := m.recent[i]
		switch {
		case e.Offered != nil:
			b.WriteString(offeredStyle.Render(fmt.Sprintf("#%d offered item=%d %s ETH", e.Seq, e.Offered.ItemID, units.FormatEther(e.Offered.Price))))
		case e.Sold != nil:
			b.WriteString(soldStyle.Render(fmt.Sprintf("#%d sold    item=%d %s ETH", e.Seq, e.Sold.ItemID, units.FormatEther(e.Sold.Price))))
		}
		b.WriteString("\n")
	}
	return borderStyle.Render(b.String())
}

func main() {
	node := flag.String("node", "http://127.0.0.1:8080", "节点地址")
	since := flag.Uint64("since", 0, "从该 seq 之后开始回放")
	flag.Parse()

	// 日志写文件，避免干扰 TUI
	logDir := "logs"
	if err := os.MkdirAll(logDir, 0o755); err != nil {
		logDir = os.TempDir()
	}
	logCfg := logger.DefaultConfig()
	logCfg.OutputFile = filepath.Join(logDir, "market-watch-tui.log")
	logCfg.FileOnly = true
	if err := logger.Init(logCfg); err != nil {
		fmt.Fprintf(os.Stderr, "初始化日志失败: %v\n", err)
		os.Exit(1)
	}

	cl := client.New(*node)
	m := initialModel(cl)
	p := tea.NewProgram(m, tea.WithAltScreen())

	m.stream.OnEvent(func(e client.Event) { p.Send(eventMsg(e)) })
	go func() {
		if err := m.stream.Connect(context.Background(), *since); err != nil {
			logger.Warnf("事件流连接失败: %v", err)
			m.stream.Reconnect()
		}
	}()

	if _, err := p.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "运行程序失败: %v\n", err)
		os.Exit(1)
	}
}
