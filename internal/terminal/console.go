package terminal

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
	"sync"

	"virtual-atm/models"
)

const (
	MenuMin = 0
	MenuMax = 5
)

// Console reads user input line by line and renders ATM screens.
type Console struct {
	in    *bufio.Reader
	out   io.Writer
	style Style

	once  sync.Once
	lines chan readResult
}

type readResult struct {
	line string
	err  error
}

// New creates a Console over in and out.
func New(in io.Reader, out io.Writer, style Style) *Console {
	return &Console{in: bufio.NewReader(in), out: out, style: style}
}

// pump is the only reader of c.in. It reads at most one line ahead and stops
// after the first read error.
func (c *Console) pump() {
	defer close(c.lines)
	for {
		line, err := c.in.ReadString('\n')
		if err != nil && !(errors.Is(err, io.EOF) && line != "") {
			c.lines <- readResult{err: err}
			return
		}
		c.lines <- readResult{line: strings.TrimRight(line, "\r\n")}
		if err != nil {
			return
		}
	}
}

// next blocks for one line or until ctx is done.
func (c *Console) next(ctx context.Context) (string, error) {
	c.once.Do(func() {
		c.lines = make(chan readResult)
		go c.pump()
	})
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case r, ok := <-c.lines:
		if !ok {
			return "", io.EOF
		}
		return r.line, r.err
	}
}

// ReadLine prompts and returns one line without its terminator.
// io.EOF is returned only when the input is exhausted with nothing read;
// ctx.Err() is returned when ctx ends first.
func (c *Console) ReadLine(ctx context.Context, prompt string) (string, error) {
	fmt.Fprint(c.out, c.style.paint(prompt, ansiYellow))
	return c.next(ctx)
}

// ReadAmount prompts until a finite number is entered. Sign is not checked here.
func (c *Console) ReadAmount(ctx context.Context, prompt string) (float64, error) {
	for {
		line, err := c.ReadLine(ctx, prompt)
		if err != nil {
			return 0, err
		}
		amount, err := strconv.ParseFloat(strings.TrimSpace(line), 64)
		if err != nil || math.IsNaN(amount) || math.IsInf(amount, 0) {
			c.Error("Invalid input. Please enter a valid amount.")
			continue
		}
		return amount, nil
	}
}

// ReadMenuChoice prompts until a choice in [MenuMin, MenuMax] is entered.
func (c *Console) ReadMenuChoice(ctx context.Context) (int, error) {
	for {
		line, err := c.ReadLine(ctx, "Enter your choice: ")
		if err != nil {
			return 0, err
		}
		choice, err := strconv.Atoi(strings.TrimSpace(line))
		if err != nil || choice < MenuMin || choice > MenuMax {
			c.Error(fmt.Sprintf("Invalid input. Please enter a number between %d-%d.", MenuMin, MenuMax))
			continue
		}
		return choice, nil
	}
}

// Pause waits for Enter.
func (c *Console) Pause(ctx context.Context) error {
	fmt.Fprintln(c.out)
	c.Info("Press Enter to continue...")
	_, err := c.next(ctx)
	return err
}

// ClearScreen clears the display when escape sequences are enabled.
func (c *Console) ClearScreen() {
	if c.style.Color {
		fmt.Fprint(c.out, clearSequence)
	}
}

func (c *Console) Printf(format string, args ...any) {
	fmt.Fprintf(c.out, format, args...)
}

func (c *Console) Success(msg string) {
	fmt.Fprintln(c.out, c.style.paint("✓ "+msg, ansiGreen, ansiBold))
}

func (c *Console) Error(msg string) {
	fmt.Fprintln(c.out, c.style.paint("✗ "+msg, ansiRed, ansiBold))
}

func (c *Console) Info(msg string) {
	fmt.Fprintln(c.out, c.style.paint("ℹ "+msg, ansiCyan))
}

// Separator prints n copies of ch.
func (c *Console) Separator(ch rune, n int) {
	fmt.Fprintln(c.out, strings.Repeat(string(ch), n))
}

func (c *Console) Header(title string) {
	c.Separator('=', 60)
	fmt.Fprintln(c.out, c.style.paint("    "+title, ansiBold, ansiBlue))
	c.Separator('=', 60)
	fmt.Fprintln(c.out)
}

func (c *Console) Welcome() {
	c.ClearScreen()
	c.Separator('=', 70)
	fmt.Fprintln(c.out, c.style.paint("                        WELCOME TO ATM SIMULATOR", ansiBold, ansiBlue))
	c.Separator('=', 70)
	fmt.Fprintln(c.out)
}

// MainMenu renders the account summary and the option list.
func (c *Console) MainMenu(accountID string, balance float64) {
	c.ClearScreen()
	c.Header("MAIN MENU")
	fmt.Fprintln(c.out, c.style.paint("Account: ", ansiGreen)+c.style.paint(accountID, ansiBold))
	fmt.Fprintln(c.out, c.style.paint("Current Balance: ", ansiGreen)+c.style.paint("$"+models.FormatMoney(balance), ansiBold))
	fmt.Fprintln(c.out)
	fmt.Fprintln(c.out, c.style.paint("Please select an option:", ansiCyan))
	fmt.Fprintln(c.out, "  [1] Balance Inquiry")
	fmt.Fprintln(c.out, "  [2] Cash Withdrawal")
	fmt.Fprintln(c.out, "  [3] Cash Deposit")
	fmt.Fprintln(c.out, "  [4] Transaction History")
	fmt.Fprintln(c.out, "  [5] Logout")
	fmt.Fprintln(c.out, "  [0] Exit ATM")
	c.Separator('-', 50)
}

// History renders the session log as a two-column table.
func (c *Console) History(txs []models.Transaction) {
	if len(txs) == 0 {
		c.Info("No transactions performed in this session.")
		return
	}
	fmt.Fprintln(c.out, c.style.paint(fmt.Sprintf("%-20s%-40s", "Type", "Remarks"), ansiCyan))
	c.Separator('-', 50)
	for _, tx := range txs {
		fmt.Fprintf(c.out, "%-20s%-40s\n", tx.Type(), tx.Description())
	}
	c.Separator('-', 50)
	fmt.Fprintf(c.out, "Total transactions: %d\n", len(txs))
}
