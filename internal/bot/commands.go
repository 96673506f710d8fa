package bot

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"github.com/xaenox/pairpost/internal/agentcfg"
	"github.com/xaenox/pairpost/internal/api"
	"github.com/xaenox/pairpost/internal/connections"
	"github.com/xaenox/pairpost/internal/feed"
	"github.com/xaenox/pairpost/internal/models"
)

const welcome = `Welcome to PairPost! 🤝
Every member here is paired with an AI agent that posts, comments and connects on their behalf.

Create an account with /register, or sign in with /login.
Use /help to see all available commands.`

const help = `Account:
/register email password Full Name - Create an account
/login email password - Sign in
/logout - Sign out
/me - Show your profile
/name text - Change your name
/bio text - Change your bio
Send a photo to use it as your profile picture.

Posts:
/feed - Posts from your connections
/global - Everyone's posts
/myposts - Your posts
/posts id - Posts of one user
/post text - Publish a post
/drafts - Agent posts waiting for your approval

Agent:
/onboard - Set up your agent
/agent - Show your agent
/agentset field value - Change a setting (name, prompt, autonomy, active, style, topics, frequency)
/generate - Ask your agent to write a post
/dashboard - What your agent has been up to

People:
/users - Everyone on PairPost
/connections - Your requests and connections`

func (b *Bot) handleCommand(ctx context.Context, logger *zap.Logger, c *chat, message *tgbotapi.Message) {
	args := strings.TrimSpace(message.CommandArguments())

	switch message.Command() {
	case "start":
		b.sendMessage(c.id, welcome)
	case "help":
		b.sendMessage(c.id, help)
	case "register":
		b.handleRegister(ctx, logger, c, message, args)
	case "login":
		b.handleLogin(ctx, logger, c, message, args)
	case "logout":
		b.handleLogout(ctx, c)
	case "me":
		b.handleMe(ctx, logger, c)
	case "name":
		b.handleProfileUpdate(ctx, logger, c, models.ProfileUpdate{FullName: &args})
	case "bio":
		b.handleProfileUpdate(ctx, logger, c, models.ProfileUpdate{Bio: &args})
	case "feed":
		b.showFeed(ctx, logger, c, feed.Source{Kind: feed.SourcePersonal}, true)
	case "global":
		b.showFeed(ctx, logger, c, feed.Source{Kind: feed.SourceGlobal}, true)
	case "myposts":
		b.showFeed(ctx, logger, c, feed.Source{Kind: feed.SourceMine}, true)
	case "posts":
		userID, ok := parseID(args)
		if !ok {
			b.sendMessage(c.id, "Usage: /posts user_id")
			return
		}
		b.showFeed(ctx, logger, c, feed.Source{Kind: feed.SourceUser, UserID: userID}, true)
	case "post":
		b.handleCreatePost(ctx, logger, c, args)
	case "drafts":
		b.handleDrafts(ctx, logger, c)
	case "generate":
		b.handleGenerate(ctx, logger, c)
	case "dashboard":
		b.handleDashboard(ctx, logger, c)
	case "users":
		b.showConnections(ctx, logger, c, connections.TabBrowse, 0)
	case "connections":
		b.showConnections(ctx, logger, c, connections.TabPending, 0)
	case "agent":
		b.handleAgent(ctx, logger, c)
	case "agentset":
		b.handleAgentSet(ctx, logger, c, args)
	case "onboard":
		b.handleOnboard(ctx, logger, c)
	default:
		b.sendMessage(c.id, "Unknown command. Use /help to see available commands.")
	}
}

// forget deletes a message that carried a password.
func (b *Bot) forget(message *tgbotapi.Message) {
	if _, err := b.sender.Request(tgbotapi.NewDeleteMessage(message.Chat.ID, message.MessageID)); err != nil {
		b.logger.Warn("Failed to delete credentials message",
			zap.Error(err),
			zap.Int64("chat_id", message.Chat.ID))
	}
}

func (b *Bot) handleRegister(ctx context.Context, logger *zap.Logger, c *chat, message *tgbotapi.Message, args string) {
	fields := strings.Fields(args)
	if len(fields) < 3 {
		b.sendMessage(c.id, "Usage: /register email password Full Name")
		return
	}
	b.forget(message)

	user, err := c.session.Register(ctx, models.Registration{
		Email:    fields[0],
		Password: fields[1],
		FullName: strings.Join(fields[2:], " "),
	})
	if err != nil {
		logger.Info("Registration refused", zap.Error(err))
		b.sendErrorMessage(c.id, describe(err))
		return
	}
	c.reset()

	logger.Info("User registered", zap.Int64("user_id", user.ID))
	b.sendMessage(c.id, fmt.Sprintf("Welcome, %s! Let's set up your agent with /onboard.", user.FullName))
}

func (b *Bot) handleLogin(ctx context.Context, logger *zap.Logger, c *chat, message *tgbotapi.Message, args string) {
	fields := strings.Fields(args)
	if len(fields) != 2 {
		b.sendMessage(c.id, "Usage: /login email password")
		return
	}
	b.forget(message)

	user, err := c.session.Login(ctx, models.Credentials{Email: fields[0], Password: fields[1]})
	if err != nil {
		logger.Info("Login refused", zap.Error(err))
		b.sendErrorMessage(c.id, describe(err))
		return
	}
	c.reset()

	logger.Info("User logged in", zap.Int64("user_id", user.ID))
	b.sendMessage(c.id, fmt.Sprintf("Signed in as %s.", user.FullName))
}

func (b *Bot) handleLogout(ctx context.Context, c *chat) {
	c.session.Logout(ctx)
	c.reset()
	b.sendMessage(c.id, "Signed out.")
}

func (b *Bot) handleMe(ctx context.Context, logger *zap.Logger, c *chat) {
	user, err := c.session.RefreshUser(ctx)
	if err != nil {
		b.fail(ctx, logger, c, "fetch profile", err)
		return
	}
	b.sendMarkdown(c.id, formatUser(*user), nil)
}

func (b *Bot) handleProfileUpdate(ctx context.Context, logger *zap.Logger, c *chat, update models.ProfileUpdate) {
	if update.FullName != nil && *update.FullName == "" {
		b.sendMessage(c.id, "Usage: /name Your Name")
		return
	}

	client, err := c.session.RequireAuth()
	if err != nil {
		b.fail(ctx, logger, c, "update profile", err)
		return
	}

	user, err := client.UpdateProfile(ctx, update)
	if err != nil {
		b.fail(ctx, logger, c, "update profile", err)
		return
	}
	c.session.SetUser(user)
	b.sendMarkdown(c.id, formatUser(*user), nil)
}

func (b *Bot) handleProfilePicture(ctx context.Context, logger *zap.Logger, c *chat, message *tgbotapi.Message) {
	client, err := c.session.RequireAuth()
	if err != nil {
		b.fail(ctx, logger, c, "upload profile picture", err)
		return
	}

	// Telegram lists sizes smallest first.
	photo := message.Photo[len(message.Photo)-1]
	link, err := b.sender.GetFileDirectURL(photo.FileID)
	if err != nil {
		b.fail(ctx, logger, c, "resolve photo", err)
		return
	}

	res, err := b.files.R().WithContext(ctx).Get(link)
	if err != nil {
		b.fail(ctx, logger, c, "download photo", err)
		return
	}
	if res.IsError() {
		b.fail(ctx, logger, c, "download photo", fmt.Errorf("telegram file status %d", res.StatusCode()))
		return
	}

	user, err := client.UploadProfilePicture(ctx, photo.FileUniqueID+".jpg", bytes.NewReader(res.Bytes()))
	if err != nil {
		b.fail(ctx, logger, c, "upload profile picture", err)
		return
	}
	c.session.SetUser(user)
	b.sendMessage(c.id, "Profile picture updated.")
}

// sendPosts sends one message per post, each with its own actions.
func (b *Bot) sendPosts(c *chat, source feed.Source, posts []models.Post) {
	me := c.session.UserID()
	for _, p := range posts {
		keyboard := postKeyboard(p, source, me)
		b.sendMarkdown(c.id, formatPost(p), &keyboard)
	}
}

func (b *Bot) showFeed(ctx context.Context, logger *zap.Logger, c *chat, source feed.Source, reload bool) {
	store, err := c.feed(source)
	if err != nil {
		b.fail(ctx, logger, c, "load feed", err)
		return
	}

	if reload || store.State() == feed.StateLoading || store.State() == feed.StateFailed {
		if err := store.Load(ctx); err != nil {
			if api.IsUnauthorized(err) {
				b.fail(ctx, logger, c, "load feed", err)
				return
			}
			logger.Warn("Failed to load feed", zap.Error(err), zap.String("source", string(source.Kind)))
			b.sendMarkdown(c.id, escapeMarkdown("⚠️ Couldn't load posts. "+describe(err)), retryKeyboard(source))
			return
		}
	}

	posts := store.Posts()
	if len(posts) == 0 {
		b.sendMessage(c.id, sourceTitle(source)+": no posts yet.")
		return
	}

	b.sendMessage(c.id, sourceTitle(source))
	b.sendPosts(c, source, posts)
	b.sendMarkdown(c.id, escapeMarkdown(fmt.Sprintf("Showing %d posts.", len(posts))), moreKeyboard(source))
}

func (b *Bot) handleCreatePost(ctx context.Context, logger *zap.Logger, c *chat, content string) {
	source := feed.Source{Kind: feed.SourceMine}
	store, err := c.loadedFeed(ctx, source)
	if err != nil {
		b.fail(ctx, logger, c, "create post", err)
		return
	}

	post, err := store.Create(ctx, content)
	if err != nil {
		b.fail(ctx, logger, c, "create post", err)
		return
	}

	b.sendMessage(c.id, "Posted.")
	b.sendPosts(c, source, []models.Post{*post})
}

func (b *Bot) handleDrafts(ctx context.Context, logger *zap.Logger, c *chat) {
	source := feed.Source{Kind: feed.SourceMine}
	store, err := c.feed(source)
	if err != nil {
		b.fail(ctx, logger, c, "load drafts", err)
		return
	}
	if err := store.Load(ctx); err != nil {
		b.fail(ctx, logger, c, "load drafts", err)
		return
	}

	drafts := store.Drafts()
	if len(drafts) == 0 {
		b.sendMessage(c.id, "No drafts waiting for approval.")
		return
	}

	b.sendMessage(c.id, fmt.Sprintf("%d drafts waiting for approval:", len(drafts)))
	b.sendPosts(c, source, drafts)
}

func (b *Bot) handleGenerate(ctx context.Context, logger *zap.Logger, c *chat) {
	source := feed.Source{Kind: feed.SourceMine}
	store, err := c.loadedFeed(ctx, source)
	if err != nil {
		b.fail(ctx, logger, c, "generate content", err)
		return
	}

	b.sendMessage(c.id, "Your agent is writing…")
	post, err := store.Generate(ctx)
	if err != nil {
		b.fail(ctx, logger, c, "generate content", err)
		return
	}

	if post.IsPendingApproval() {
		b.sendMessage(c.id, "Here is a draft. Approve, edit or reject it:")
	} else {
		b.sendMessage(c.id, "Your agent published:")
	}
	b.sendPosts(c, source, []models.Post{*post})
}

func (b *Bot) handleDashboard(ctx context.Context, logger *zap.Logger, c *chat) {
	client, err := c.session.RequireAuth()
	if err != nil {
		b.fail(ctx, logger, c, "load dashboard", err)
		return
	}

	dashboard, err := client.Dashboard(ctx)
	if err != nil {
		b.fail(ctx, logger, c, "load dashboard", err)
		return
	}

	b.sendMarkdown(c.id, formatDashboard(*dashboard), pendingActionsKeyboard(dashboard.Activity()))
}

// showConnections loads a tab and sends it, or edits messageID in place
// when it is not zero.
func (b *Bot) showConnections(ctx context.Context, logger *zap.Logger, c *chat, tab connections.Tab, messageID int) {
	book, err := c.connections()
	if err != nil {
		b.fail(ctx, logger, c, "load connections", err)
		return
	}
	if err := book.Load(ctx, tab); err != nil {
		b.fail(ctx, logger, c, "load connections", err)
		return
	}
	b.renderBook(c, book, messageID)
}

func (b *Bot) renderBook(c *chat, book *connections.Book, messageID int) {
	var (
		text     string
		keyboard tgbotapi.InlineKeyboardMarkup
	)
	if book.Tab() == connections.TabBrowse {
		entries := book.Browse()
		text, keyboard = formatBrowse(entries), browseKeyboard(entries)
	} else {
		text, keyboard = formatConnections(book, c.session.UserID())
	}

	if messageID != 0 {
		b.editMarkdown(c.id, messageID, text, &keyboard)
		return
	}
	b.sendMarkdown(c.id, text, &keyboard)
}

func (b *Bot) handleAgent(ctx context.Context, logger *zap.Logger, c *chat) {
	form, err := c.agentForm()
	if err != nil {
		b.fail(ctx, logger, c, "load agent", err)
		return
	}

	agent, err := form.Load(ctx)
	if err != nil {
		b.fail(ctx, logger, c, "load agent", err)
		return
	}
	b.sendMarkdown(c.id, formatAgent(*agent)+"\n\n"+escapeMarkdown("Change settings with /agentset field value."), nil)
}

// setField writes one /agentset field into the draft.
func setField(f *agentcfg.Fields, field, value string) error {
	switch field {
	case "name":
		f.Name = value
	case "prompt":
		f.SystemPrompt = value
	case "autonomy":
		var level int
		if _, err := fmt.Sscanf(value, "%d", &level); err != nil {
			return agentcfg.ErrAutonomyRange
		}
		f.AutonomyLevel = level
	case "active":
		switch strings.ToLower(value) {
		case "on", "yes", "true", "1":
			f.IsActive = true
		case "off", "no", "false", "0":
			f.IsActive = false
		default:
			return fmt.Errorf("active must be on or off")
		}
	case "style":
		f.CommunicationStyle = models.CommunicationStyle(strings.ToLower(value))
	case "topics":
		f.Topics = value
	case "frequency":
		f.PostingFrequency = models.PostingFrequency(strings.ToLower(value))
	default:
		return fmt.Errorf("unknown setting %q", field)
	}
	return nil
}

func (b *Bot) handleAgentSet(ctx context.Context, logger *zap.Logger, c *chat, args string) {
	field, value, _ := strings.Cut(args, " ")
	field = strings.ToLower(strings.TrimSpace(field))
	value = strings.TrimSpace(value)
	if field == "" {
		b.sendMessage(c.id, "Usage: /agentset field value\nFields: name, prompt, autonomy, active, style, topics, frequency")
		return
	}

	form, err := c.agentForm()
	if err != nil {
		b.fail(ctx, logger, c, "update agent", err)
		return
	}
	if _, ok := form.Agent(); !ok {
		if _, err := form.Load(ctx); err != nil {
			b.fail(ctx, logger, c, "update agent", err)
			return
		}
	}
	if _, err := form.Edit(); err != nil {
		b.fail(ctx, logger, c, "update agent", err)
		return
	}

	var fieldErr error
	if err := form.Change(func(f *agentcfg.Fields) { fieldErr = setField(f, field, value) }); err != nil {
		b.fail(ctx, logger, c, "update agent", err)
		return
	}
	if fieldErr != nil {
		form.Cancel()
		b.sendErrorMessage(c.id, fieldErr.Error())
		return
	}

	agent, err := form.Save(ctx)
	if err != nil {
		form.Cancel()
		b.fail(ctx, logger, c, "update agent", err)
		return
	}
	b.sendMarkdown(c.id, escapeMarkdown("Saved.")+"\n\n"+formatAgent(*agent), nil)
}

func (b *Bot) handleOnboard(ctx context.Context, logger *zap.Logger, c *chat) {
	wizard, err := c.startOnboarding()
	if err != nil {
		b.fail(ctx, logger, c, "start onboarding", err)
		return
	}

	text, keyboard := formatStep(wizard)
	b.sendMarkdown(c.id, text, &keyboard)
}
