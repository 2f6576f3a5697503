package server

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/fatih/color"
)

// Operator 服务端控制台：开局前确认两次，并打印对局进展
type Operator struct {
	out   io.Writer
	lines chan string
	start sync.Once
	in    io.Reader

	promptColor *color.Color
	infoColor   *color.Color
	winColor    *color.Color
	warnColor   *color.Color
}

func NewOperator(in io.Reader, out io.Writer) *Operator {
	return &Operator{
		in:          in,
		out:         out,
		lines:       make(chan string),
		promptColor: color.New(color.FgYellow, color.Bold),
		infoColor:   color.New(color.FgCyan, color.Bold),
		winColor:    color.New(color.FgGreen, color.Bold),
		warnColor:   color.New(color.FgRed),
	}
}

func (o *Operator) readLines() {
	defer close(o.lines)
	sc := bufio.NewScanner(o.in)
	for sc.Scan() {
		o.lines <- sc.Text()
	}
}

// ConfirmStart 阻塞到两次提示都得到回应。任何输入都算同意，
// 控制台关闭或 ctx 取消视为拒绝
func (o *Operator) ConfirmStart(ctx context.Context) error {
	o.start.Do(func() { go o.readLines() })
	for _, prompt := range []string{
		"Type anything to start the game: ",
		"Are you sure you wanna start the game? : ",
	} {
		o.promptColor.Fprint(o.out, prompt)
		select {
		case <-ctx.Done():
			fmt.Fprintln(o.out)
			return context.Cause(ctx)
		case _, ok := <-o.lines:
			if !ok {
				fmt.Fprintln(o.out)
				return fmt.Errorf("operator console closed: %w", io.EOF)
			}
		}
	}
	return nil
}

func (o *Operator) Banner(addr string) {
	o.infoColor.Fprintln(o.out, "GAME INITIALIZED")
	o.infoColor.Fprintf(o.out, "WAITING FOR PLAYERS TO CONNECT on %s\n", addr)
}

func (o *Operator) Announce(r Result) {
	switch r.Outcome {
	case OutcomeNoPlayers:
		o.warnColor.Fprintln(o.out, "NO PLAYERS JOINED")
	case OutcomeWinner:
		o.winColor.Fprintf(o.out, "FINISHED THE GAME, %s WINS\n", r.Winner)
	case OutcomeAborted:
		o.warnColor.Fprintln(o.out, "GAME ABORTED")
	default:
		o.infoColor.Fprintf(o.out, "FINISHED THE GAME (%s)\n", r.Outcome)
	}
}
