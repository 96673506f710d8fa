package bot

import (
	"fmt"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/samber/lo"

	"github.com/xaenox/pairpost/internal/agentcfg"
	"github.com/xaenox/pairpost/internal/connections"
	"github.com/xaenox/pairpost/internal/feed"
	"github.com/xaenox/pairpost/internal/models"
	"github.com/xaenox/pairpost/internal/onboarding"
)

const sep = ":"

// callback builds inline button data such as "like:m:12".
func callback(action string, args ...any) string {
	parts := make([]string, 0, len(args)+1)
	parts = append(parts, action)
	for _, a := range args {
		parts = append(parts, fmt.Sprint(a))
	}
	return strings.Join(parts, sep)
}

func parseCallback(data string) (string, []string) {
	parts := strings.Split(data, sep)
	return parts[0], parts[1:]
}

func parseID(s string) (int64, bool) {
	id, err := strconv.ParseInt(s, 10, 64)
	return id, err == nil && id > 0
}

// sourceCode is the short form of a feed source used in callback data.
func sourceCode(s feed.Source) string {
	switch s.Kind {
	case feed.SourceGlobal:
		return "g"
	case feed.SourceMine:
		return "m"
	case feed.SourceUser:
		return "u" + strconv.FormatInt(s.UserID, 10)
	default:
		return "p"
	}
}

func parseSource(code string) (feed.Source, bool) {
	switch {
	case code == "p":
		return feed.Source{Kind: feed.SourcePersonal}, true
	case code == "g":
		return feed.Source{Kind: feed.SourceGlobal}, true
	case code == "m":
		return feed.Source{Kind: feed.SourceMine}, true
	case strings.HasPrefix(code, "u"):
		id, ok := parseID(code[1:])
		return feed.Source{Kind: feed.SourceUser, UserID: id}, ok
	}
	return feed.Source{}, false
}

func sourceTitle(s feed.Source) string {
	switch s.Kind {
	case feed.SourceGlobal:
		return "Global feed"
	case feed.SourceMine:
		return "Your posts"
	case feed.SourceUser:
		return fmt.Sprintf("Posts of user #%d", s.UserID)
	default:
		return "Your feed"
	}
}

func displayName(summary *models.UserSummary, id int64) string {
	if summary != nil && summary.FullName != "" {
		return summary.FullName
	}
	return fmt.Sprintf("User #%d", id)
}

func formatTime(ts models.Timestamp) string {
	if ts.IsZero() {
		return ""
	}
	return ts.Local().Format("Jan 2, 15:04")
}

func formatPost(p models.Post) string {
	var sb strings.Builder

	author := "👤"
	if p.PostType == models.PostTypeAgent {
		author = "🤖"
	}
	fmt.Fprintf(&sb, "%s *%s*", author, escapeMarkdown(displayName(p.Author, p.UserID)))
	if when := formatTime(p.CreatedAt); when != "" {
		fmt.Fprintf(&sb, " · _%s_", escapeMarkdown(when))
	}
	sb.WriteString("\n\n")
	sb.WriteString(escapeMarkdown(p.Content))
	sb.WriteString("\n\n")

	heart := "🤍"
	if p.IsLiked {
		heart = "❤️"
	}
	fmt.Fprintf(&sb, "%s %d  💬 %d", heart, p.LikeCount, p.CommentCount)

	var tags []string
	if p.IsPendingApproval() {
		tags = append(tags, "draft, awaiting your approval")
	} else if p.Status != models.StatusPublished && p.Status != "" {
		tags = append(tags, string(p.Status))
	}
	if p.IsEdited {
		tags = append(tags, "edited")
	}
	if len(tags) > 0 {
		fmt.Fprintf(&sb, "  %s", escapeMarkdown("· "+strings.Join(tags, " · ")))
	}

	return sb.String()
}

func postKeyboard(p models.Post, source feed.Source, me int64) tgbotapi.InlineKeyboardMarkup {
	code := sourceCode(source)

	like := "🤍 Like"
	if p.IsLiked {
		like = "❤️ Unlike"
	}
	rows := [][]tgbotapi.InlineKeyboardButton{
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(like, callback("like", code, p.ID)),
			tgbotapi.NewInlineKeyboardButtonData(fmt.Sprintf("💬 %d", p.CommentCount), callback("cmts", code, p.ID)),
			tgbotapi.NewInlineKeyboardButtonData("✍️ Reply", callback("cmt", code, p.ID)),
		),
	}

	switch {
	case p.UserID != me:
	case p.IsPendingApproval():
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("✅ Approve", callback("appr", code, p.ID)),
			tgbotapi.NewInlineKeyboardButtonData("✏️ Edit & publish", callback("edpub", code, p.ID)),
			tgbotapi.NewInlineKeyboardButtonData("🗑 Reject", callback("rej", code, p.ID)),
		))
	default:
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("✏️ Edit", callback("edit", code, p.ID)),
			tgbotapi.NewInlineKeyboardButtonData("🗑 Delete", callback("del", code, p.ID)),
		))
	}

	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}

func formatComment(c models.Interaction) string {
	heart := "🤍"
	if c.IsLiked {
		heart = "❤️"
	}
	line := fmt.Sprintf("*%s*: %s  %s %d",
		escapeMarkdown(displayName(c.User, c.UserID)),
		escapeMarkdown(c.Text()),
		heart, c.LikeCount)
	if c.ActorType == models.ActorAgent {
		line = "🤖 " + line
	}
	return line
}

func commentsKeyboard(comments []models.Interaction, source feed.Source, postID, me int64) *tgbotapi.InlineKeyboardMarkup {
	code := sourceCode(source)

	rows := lo.Map(comments, func(c models.Interaction, i int) []tgbotapi.InlineKeyboardButton {
		label := fmt.Sprintf("%d. 🤍", i+1)
		if c.IsLiked {
			label = fmt.Sprintf("%d. ❤️", i+1)
		}
		row := tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(label, callback("clk", code, postID, c.ID)),
		)
		if c.UserID == me {
			row = append(row,
				tgbotapi.NewInlineKeyboardButtonData(fmt.Sprintf("%d. ✏️", i+1), callback("cedit", code, postID, c.ID)),
				tgbotapi.NewInlineKeyboardButtonData(fmt.Sprintf("%d. 🗑", i+1), callback("cdel", code, postID, c.ID)),
			)
		}
		return row
	})
	if len(rows) == 0 {
		return nil
	}

	keyboard := tgbotapi.NewInlineKeyboardMarkup(rows...)
	return &keyboard
}

func formatComments(comments []models.Interaction) string {
	if len(comments) == 0 {
		return escapeMarkdown("No comments yet.")
	}

	lines := lo.Map(comments, func(c models.Interaction, i int) string {
		return fmt.Sprintf("%d\\. %s", i+1, formatComment(c))
	})
	return "*Comments*\n\n" + strings.Join(lines, "\n")
}

func formatUser(u models.User) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "*%s*\n%s", escapeMarkdown(u.FullName), escapeMarkdown(u.Email))
	if u.Bio != "" {
		fmt.Fprintf(&sb, "\n\n%s", escapeMarkdown(u.Bio))
	}
	if u.ProfilePictureURL != "" {
		fmt.Fprintf(&sb, "\n\n%s", escapeMarkdown(u.ProfilePictureURL))
	}
	return sb.String()
}

func formatAgent(a models.Agent) string {
	f := agentcfg.FieldsOf(a)

	state := "paused"
	if a.IsActive {
		state = "active"
	}
	topics := f.Topics
	if topics == "" {
		topics = "none"
	}

	lines := []string{
		fmt.Sprintf("🤖 *%s* \\(%s\\)", escapeMarkdown(a.Name), state),
		"",
		fmt.Sprintf("Autonomy: %d/%d", a.AutonomyLevel, models.MaxAutonomy),
		fmt.Sprintf("Style: %s", escapeMarkdown(string(f.CommunicationStyle))),
		fmt.Sprintf("Posting: %s", escapeMarkdown(string(f.PostingFrequency))),
		fmt.Sprintf("Topics: %s", escapeMarkdown(topics)),
	}
	if a.SystemPrompt != "" {
		lines = append(lines, "", "_"+escapeMarkdown(a.SystemPrompt)+"_")
	}
	lines = append(lines, "", escapeMarkdown(autonomyNote(a.AutonomyLevel)))
	return strings.Join(lines, "\n")
}

func autonomyNote(level int) string {
	if level < models.ApprovalThreshold {
		return fmt.Sprintf("Posts your agent writes wait for your approval (autonomy below %d).", models.ApprovalThreshold)
	}
	return "Your agent publishes on its own."
}

func formatDashboard(d models.Dashboard) string {
	var sb strings.Builder

	fmt.Fprintf(&sb, "🤖 *%s*\n", escapeMarkdown(d.Agent.Name))
	fmt.Fprintf(&sb, "Autonomy %d/%d · %d actions today\n", d.Agent.AutonomyLevel, models.MaxAutonomy, d.Agent.ActionsToday)
	if d.Agent.LastActionAt != nil {
		fmt.Fprintf(&sb, "Last action %s\n", escapeMarkdown(formatTime(*d.Agent.LastActionAt)))
	}

	fmt.Fprintf(&sb, "\n*Totals*\nPosts %d · Interactions %d · Connections %d\n",
		d.Stats.TotalPosts, d.Stats.TotalInteractions, d.Stats.Connections)

	if t := d.TodayStats; t != nil {
		fmt.Fprintf(&sb, "\n*Today*\nPosts %d · Comments %d · Likes %d · Requests %d\n",
			t.PostsCreated, t.CommentsCreated, t.LikesGiven, t.ConnectionsRequested)
	}

	if activity := d.Activity(); len(activity) > 0 {
		sb.WriteString("\n*Recent activity*\n")
		for _, a := range lo.Slice(activity, 0, 5) {
			fmt.Fprintf(&sb, "• %s %s\n",
				escapeMarkdown(a.Description),
				escapeMarkdown("("+a.Status+")"))
		}
	}

	sb.WriteString("\n" + escapeMarkdown(autonomyNote(d.Agent.AutonomyLevel)))
	return sb.String()
}

func pendingActionsKeyboard(actions []models.AgentAction) *tgbotapi.InlineKeyboardMarkup {
	rows := lo.FilterMap(actions, func(a models.AgentAction, _ int) ([]tgbotapi.InlineKeyboardButton, bool) {
		if a.Status != "pending" {
			return nil, false
		}
		return tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(fmt.Sprintf("✅ #%d", a.ID), callback("aok", a.ID)),
			tgbotapi.NewInlineKeyboardButtonData(fmt.Sprintf("✖️ #%d", a.ID), callback("ano", a.ID)),
		), true
	})
	if len(rows) == 0 {
		return nil
	}
	keyboard := tgbotapi.NewInlineKeyboardMarkup(rows...)
	return &keyboard
}

func statusLabel(s connections.Status) string {
	switch s {
	case connections.StatusConnected:
		return "connected"
	case connections.StatusPendingOut:
		return "request sent"
	case connections.StatusPendingIn:
		return "wants to connect"
	default:
		return "not connected"
	}
}

func formatBrowse(entries []connections.Entry) string {
	if len(entries) == 0 {
		return escapeMarkdown("No other users yet.")
	}

	lines := lo.Map(entries, func(e connections.Entry, _ int) string {
		return fmt.Sprintf("• *%s* \\- %s", escapeMarkdown(e.User.FullName), escapeMarkdown(statusLabel(e.Status)))
	})
	return "*People*\n\n" + strings.Join(lines, "\n")
}

func browseKeyboard(entries []connections.Entry) tgbotapi.InlineKeyboardMarkup {
	rows := lo.FilterMap(entries, func(e connections.Entry, _ int) ([]tgbotapi.InlineKeyboardButton, bool) {
		name := e.User.FullName
		posts := tgbotapi.NewInlineKeyboardButtonData("📰 "+name, callback("posts", e.User.ID))
		switch e.Status {
		case connections.StatusNone:
			return tgbotapi.NewInlineKeyboardRow(posts,
				tgbotapi.NewInlineKeyboardButtonData("➕ Connect", callback("conn", e.User.ID))), true
		case connections.StatusPendingIn:
			return tgbotapi.NewInlineKeyboardRow(posts,
				tgbotapi.NewInlineKeyboardButtonData("✅ Accept", callback("acc", e.ConnectionID)),
				tgbotapi.NewInlineKeyboardButtonData("✖️ Decline", callback("rjc", e.ConnectionID))), true
		case connections.StatusConnected:
			return tgbotapi.NewInlineKeyboardRow(posts,
				tgbotapi.NewInlineKeyboardButtonData("➖ Remove", callback("rm", e.ConnectionID))), true
		default:
			return tgbotapi.NewInlineKeyboardRow(posts), true
		}
	})
	rows = append(rows, tabsRow(connections.TabBrowse))
	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}

type tabLabel struct {
	tab   connections.Tab
	label string
}

var tabLabels = []tabLabel{
	{connections.TabBrowse, "People"},
	{connections.TabPending, "Pending"},
	{connections.TabAccepted, "Connected"},
}

func tabsRow(current connections.Tab) []tgbotapi.InlineKeyboardButton {
	return lo.Map(tabLabels, func(t tabLabel, _ int) tgbotapi.InlineKeyboardButton {
		label := t.label
		if t.tab == current {
			label = "• " + label + " •"
		}
		return tgbotapi.NewInlineKeyboardButtonData(label, callback("tab", t.tab))
	})
}

func peerName(c models.Connection, me int64) string {
	return displayName(c.PeerSummary(me), c.Peer(me))
}

// formatConnections renders the pending or accepted tab.
func formatConnections(book *connections.Book, me int64) (string, tgbotapi.InlineKeyboardMarkup) {
	var (
		lines []string
		rows  [][]tgbotapi.InlineKeyboardButton
	)

	if book.Tab() == connections.TabPending {
		lines = append(lines, "*Incoming requests*")
		for _, c := range book.Incoming() {
			name := peerName(c, me)
			lines = append(lines, "• "+escapeMarkdown(name))
			rows = append(rows, tgbotapi.NewInlineKeyboardRow(
				tgbotapi.NewInlineKeyboardButtonData("✅ "+name, callback("acc", c.ID)),
				tgbotapi.NewInlineKeyboardButtonData("✖️ Decline", callback("rjc", c.ID)),
			))
		}
		lines = append(lines, "", "*Sent requests*")
		for _, c := range book.Outgoing() {
			lines = append(lines, "• "+escapeMarkdown(peerName(c, me)))
		}
	} else {
		lines = append(lines, "*Connected*")
		for _, c := range book.Listed() {
			name := peerName(c, me)
			lines = append(lines, "• "+escapeMarkdown(name))
			rows = append(rows, tgbotapi.NewInlineKeyboardRow(
				tgbotapi.NewInlineKeyboardButtonData("➖ "+name, callback("rm", c.ID)),
			))
		}
	}

	if len(book.Listed()) == 0 {
		lines = append(lines, escapeMarkdown("Nothing here yet."))
	}

	rows = append(rows, tabsRow(book.Tab()))
	return strings.Join(lines, "\n"), tgbotapi.NewInlineKeyboardMarkup(rows...)
}

func optionRow[T ~string](action string, options []T, current T) []tgbotapi.InlineKeyboardButton {
	return lo.Map(options, func(o T, _ int) tgbotapi.InlineKeyboardButton {
		label := string(o)
		if o == current {
			label = "✓ " + label
		}
		return tgbotapi.NewInlineKeyboardButtonData(label, callback("ob", action, o))
	})
}

// formatStep renders the current onboarding step with its controls.
func formatStep(w *onboarding.Wizard) (string, tgbotapi.InlineKeyboardMarkup) {
	q := w.Answers()
	step := w.Step()

	var (
		prompt string
		rows   [][]tgbotapi.InlineKeyboardButton
	)

	switch step {
	case onboarding.StepUseCase:
		prompt = "What will you mostly use PairPost for?"
		rows = append(rows, optionRow("uc", onboarding.UseCases, q.UseCase))
	case onboarding.StepFrequency:
		prompt = "How often should your agent post?"
		rows = append(rows, optionRow("freq", onboarding.Frequencies, q.PostingFrequency))
	case onboarding.StepTopics:
		prompt = "Which topics interest you? Send them as a comma separated message, or skip."
		if len(q.TopicsOfInterest) > 0 {
			prompt += "\n\nTopics: " + agentcfg.JoinTopics(q.TopicsOfInterest)
			rows = append(rows, lo.Map(q.TopicsOfInterest, func(t string, i int) tgbotapi.InlineKeyboardButton {
				return tgbotapi.NewInlineKeyboardButtonData("✖️ "+t, callback("ob", "rmtopic", i))
			}))
		}
	case onboarding.StepStyle:
		prompt = "How should your agent sound?"
		rows = append(rows, optionRow("style", onboarding.Styles, q.CommunicationStyle))
	case onboarding.StepAutonomy:
		prompt = fmt.Sprintf("How much should your agent do on its own? (currently %d)\n\n%s",
			q.AutonomyPreference, autonomyNote(q.AutonomyPreference))
		if q.AdditionalContext != "" {
			prompt += "\n\nAbout you: " + q.AdditionalContext
		}
		levels := lo.RangeFrom(models.MinAutonomy, models.MaxAutonomy)
		for _, chunk := range lo.Chunk(levels, 5) {
			rows = append(rows, lo.Map(chunk, func(l int, _ int) tgbotapi.InlineKeyboardButton {
				label := strconv.Itoa(l)
				if l == q.AutonomyPreference {
					label = "✓ " + label
				}
				return tgbotapi.NewInlineKeyboardButtonData(label, callback("ob", "aut", l))
			}))
		}
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("📝 Tell it about you", callback("ob", "ctx")),
		))
	}

	nav := tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData("◀️ Back", callback("ob", "back")))
	if step == onboarding.StepAutonomy {
		nav = append(nav, tgbotapi.NewInlineKeyboardButtonData("🚀 Create agent", callback("ob", "submit")))
	} else {
		nav = append(nav, tgbotapi.NewInlineKeyboardButtonData("Next ▶️", callback("ob", "next")))
	}
	rows = append(rows, nav)

	header := fmt.Sprintf("Step %d of %d · %s", int(step)+1, onboarding.StepCount, step)
	text := "*" + escapeMarkdown(header) + "*\n\n" + escapeMarkdown(prompt)
	if err := w.Err(); err != nil {
		text += "\n\n" + escapeMarkdown("⚠️ "+describe(err))
	}
	return text, tgbotapi.NewInlineKeyboardMarkup(rows...)
}

func moreKeyboard(source feed.Source) *tgbotapi.InlineKeyboardMarkup {
	keyboard := tgbotapi.NewInlineKeyboardMarkup(tgbotapi.NewInlineKeyboardRow(
		tgbotapi.NewInlineKeyboardButtonData("⬇️ Load more", callback("more", sourceCode(source))),
	))
	return &keyboard
}

func retryKeyboard(source feed.Source) *tgbotapi.InlineKeyboardMarkup {
	keyboard := tgbotapi.NewInlineKeyboardMarkup(tgbotapi.NewInlineKeyboardRow(
		tgbotapi.NewInlineKeyboardButtonData("🔄 Retry", callback("retry", sourceCode(source))),
	))
	return &keyboard
}
