package cmd

import (
	"fmt"
	"io"
	"os/exec"
	"runtime"
	"strings"
	"sync"
	"time"

	"atomicgo.dev/cursor"
	"github.com/pterm/pterm"

	"idkeeper/cli/internal/session"
)

var spinnerFrames = []string{"|", "/", "-", "\\"}

// startInlineSpinner animates frames followed by text on a single line of w
// with the cursor hidden. The returned function clears the line and restores
// the cursor.
func startInlineSpinner(w io.Writer, text string, frames []string, interval time.Duration) func() {
	stop := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	cursor.Hide()
	go func() {
		defer wg.Done()
		i := 0
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			line := fmt.Sprintf("%s %s", frames[i%len(frames)], text)
			select {
			case <-stop:
				fmt.Fprintf(w, "\r%*s\r", len(line), "")
				return
			case <-ticker.C:
				fmt.Fprintf(w, "\r%s", line)
				i++
			}
		}
	}()
	var once sync.Once
	return func() {
		once.Do(func() {
			close(stop)
			wg.Wait()
			cursor.Show()
		})
	}
}

// openBrowser starts the platform URL handler for url without waiting for it.
func openBrowser(url string) error {
	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "windows":
		cmd = exec.Command("rundll32", "url.dll,FileProtocolHandler", url)
	case "darwin":
		cmd = exec.Command("open", url)
	default:
		cmd = exec.Command("xdg-open", url)
	}
	return cmd.Start()
}

// displayName picks the friendliest label for the signed-in account.
func displayName(identifier string, info *session.AccountInformation) string {
	if info != nil {
		for _, s := range []string{info.DisplayName, info.Email, info.PublicUID} {
			if s != "" {
				return s
			}
		}
	}
	return identifier
}

// describeEvent renders an event as one human-readable line.
func describeEvent(ev session.Event) string {
	who := displayName(ev.Identifier, ev.Info)
	switch ev.Kind {
	case session.SessionOpened:
		if ev.Info == nil {
			return fmt.Sprintf("session opened for %s (not yet validated)", who)
		}
		return "session opened for " + who
	case session.SessionInfoRefreshed:
		return "account information refreshed for " + who
	case session.SessionLoginFailed:
		return "login failed: " + humanize(ev.Reason())
	case session.SessionClosed:
		if who == "" {
			return "session closed: " + humanize(ev.Reason())
		}
		return fmt.Sprintf("session for %s closed: %s", who, humanize(ev.Reason()))
	}
	return ev.Kind.String()
}

// humanize turns a camelCase reason into lower-case words.
func humanize(reason string) string {
	var b strings.Builder
	for i, r := range reason {
		if r >= 'A' && r <= 'Z' {
			if i > 0 {
				b.WriteByte(' ')
			}
			r += 'a' - 'A'
		}
		b.WriteRune(r)
	}
	return b.String()
}

// printEvent writes ev with a timestamp, coloured by kind.
func printEvent(ev session.Event) {
	line := fmt.Sprintf("%s #%d %s", ev.At.Local().Format(time.TimeOnly), ev.Seq, describeEvent(ev))
	switch ev.Kind {
	case session.SessionOpened:
		pterm.Success.Println(line)
	case session.SessionInfoRefreshed:
		pterm.Info.Println(line)
	case session.SessionLoginFailed:
		pterm.Error.Println(line)
	default:
		pterm.Warning.Println(line)
	}
}

func printNotLoggedIn() {
	pterm.Println("🔒 You're not logged in yet!")
	pterm.Println("   Run 'idkeeper login' to get started.")
}

// renderAccount prints account details as a two-column table.
func renderAccount(identifier string, info *session.AccountInformation) error {
	rows := [][]string{{"Field", "Value"}, {"Identifier", identifier}}
	add := func(k, v string) {
		if v != "" {
			rows = append(rows, []string{k, v})
		}
	}
	if info != nil {
		add("Display name", info.DisplayName)
		add("Email", info.Email)
		add("User ID", info.UID)
		add("Public ID", info.PublicUID)
		add("First name", info.FirstName)
		add("Last name", info.LastName)
		add("Gender", string(info.Gender))
		if info.Birthdate != nil {
			add("Birthdate", info.Birthdate.Format(time.DateOnly))
		}
		add("Avatar", info.AvatarURL)
		if info.Verified {
			add("Verified", "yes")
		}
	}
	return pterm.DefaultTable.WithHasHeader().WithData(rows).Render()
}
