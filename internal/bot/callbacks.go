package bot

import (
	"context"
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/samber/lo"
	"go.uber.org/zap"

	"github.com/xaenox/pairpost/internal/agentcfg"
	"github.com/xaenox/pairpost/internal/connections"
	"github.com/xaenox/pairpost/internal/feed"
	"github.com/xaenox/pairpost/internal/models"
	"github.com/xaenox/pairpost/internal/onboarding"
)

func (b *Bot) answer(query *tgbotapi.CallbackQuery, text string) {
	if _, err := b.sender.Request(tgbotapi.NewCallback(query.ID, text)); err != nil {
		b.logger.Warn("Failed to answer callback", zap.Error(err), zap.String("data", query.Data))
	}
}

func (b *Bot) handleCallback(ctx context.Context, logger *zap.Logger, query *tgbotapi.CallbackQuery) {
	if query.Message == nil {
		b.answer(query, "")
		return
	}

	c := b.chat(ctx, query.Message.Chat.ID)
	logger = logger.With(zap.Int64("chat_id", c.id), zap.String("data", query.Data))
	messageID := query.Message.MessageID

	action, args := parseCallback(query.Data)
	notice := ""

	switch action {
	case "like", "cmts", "cmt", "appr", "edpub", "rej", "edit", "del":
		notice = b.handlePostAction(ctx, logger, c, messageID, action, args)
	case "clk", "cedit", "cdel":
		b.handleCommentAction(ctx, logger, c, messageID, action, args)
	case "more":
		if source, ok := sourceArg(args); ok {
			b.showMore(ctx, logger, c, source)
		}
	case "retry":
		if source, ok := sourceArg(args); ok {
			b.showFeed(ctx, logger, c, source, true)
		}
	case "posts":
		if len(args) == 1 {
			if userID, ok := parseID(args[0]); ok {
				b.showFeed(ctx, logger, c, feed.Source{Kind: feed.SourceUser, UserID: userID}, true)
			}
		}
	case "conn", "acc", "rjc", "rm":
		b.handleConnectionAction(ctx, logger, c, messageID, action, args)
	case "tab":
		if len(args) == 1 {
			b.showConnections(ctx, logger, c, connections.Tab(args[0]), messageID)
		}
	case "aok", "ano":
		b.handleAgentAction(ctx, logger, c, action, args)
	case "ob":
		notice = b.handleOnboardingAction(ctx, logger, c, messageID, args)
	default:
		logger.Warn("Unknown callback")
	}

	b.answer(query, notice)
}

func sourceArg(args []string) (feed.Source, bool) {
	if len(args) == 0 {
		return feed.Source{}, false
	}
	return parseSource(args[0])
}

// postArgs decodes "<source>:<post id>".
func postArgs(args []string) (feed.Source, int64, bool) {
	if len(args) < 2 {
		return feed.Source{}, 0, false
	}
	source, ok := parseSource(args[0])
	if !ok {
		return feed.Source{}, 0, false
	}
	postID, ok := parseID(args[1])
	return source, postID, ok
}

func (b *Bot) refreshPost(c *chat, store *feed.Store, messageID int, postID int64) {
	post, ok := store.Get(postID)
	if !ok {
		return
	}
	keyboard := postKeyboard(post, store.Source(), c.session.UserID())
	b.editMarkdown(c.id, messageID, formatPost(post), &keyboard)
}

// reconcileElsewhere refreshes postID in every other loaded feed that shows it.
func (b *Bot) reconcileElsewhere(ctx context.Context, logger *zap.Logger, c *chat, origin *feed.Store, postID int64) {
	for _, store := range c.known() {
		if store == origin {
			continue
		}
		if _, ok := store.Get(postID); !ok {
			continue
		}
		if err := store.Reconcile(ctx, postID); err != nil {
			logger.Warn("Failed to reconcile post", zap.Error(err), zap.Int64("post_id", postID))
		}
	}
}

func (b *Bot) handlePostAction(ctx context.Context, logger *zap.Logger, c *chat, messageID int, action string, args []string) string {
	source, postID, ok := postArgs(args)
	if !ok {
		return ""
	}

	store, err := c.loadedFeed(ctx, source)
	if err != nil {
		b.fail(ctx, logger, c, "load feed", err)
		return ""
	}

	switch action {
	case "like":
		if err := store.ToggleLike(ctx, postID); err != nil {
			b.fail(ctx, logger, c, "like post", err)
			return ""
		}
		b.refreshPost(c, store, messageID, postID)

	case "cmts":
		comments, err := store.Comments(ctx, postID)
		if err != nil {
			b.fail(ctx, logger, c, "load comments", err)
			return ""
		}
		b.sendMarkdown(c.id, formatComments(comments), commentsKeyboard(comments, source, postID, c.session.UserID()))

	case "cmt":
		if _, err := c.session.RequireAuth(); err != nil {
			b.fail(ctx, logger, c, "comment", err)
			return ""
		}
		c.expect(pendingInput{kind: inputComment, source: source, postID: postID})
		b.sendMessage(c.id, "Send your comment as a message.")

	case "edit", "edpub":
		if _, ok := store.Get(postID); !ok {
			b.fail(ctx, logger, c, "edit post", feed.ErrUnknownPost)
			return ""
		}
		kind := inputEditPost
		if action == "edpub" {
			kind = inputPublishDraft
		}
		c.expect(pendingInput{kind: kind, source: source, postID: postID})
		b.sendMessage(c.id, "Send the new text of the post.")

	case "appr":
		if _, err := store.Approve(ctx, postID); err != nil {
			b.fail(ctx, logger, c, "approve post", err)
			return ""
		}
		b.refreshPost(c, store, messageID, postID)
		b.reconcileElsewhere(ctx, logger, c, store, postID)
		return "Published"

	case "rej", "del":
		var err error
		if action == "rej" {
			err = store.Reject(ctx, postID)
		} else {
			err = store.Delete(ctx, postID)
		}
		if err != nil {
			b.fail(ctx, logger, c, "delete post", err)
			return ""
		}
		b.editMarkdown(c.id, messageID, escapeMarkdown("🗑 Post removed."), nil)
		b.reconcileElsewhere(ctx, logger, c, store, postID)
	}

	return ""
}

func (b *Bot) handleCommentAction(ctx context.Context, logger *zap.Logger, c *chat, messageID int, action string, args []string) {
	source, postID, ok := postArgs(args)
	if !ok || len(args) < 3 {
		return
	}
	commentID, ok := parseID(args[2])
	if !ok {
		return
	}

	store, err := c.loadedFeed(ctx, source)
	if err != nil {
		b.fail(ctx, logger, c, "load feed", err)
		return
	}

	switch action {
	case "cedit":
		if _, ok := lo.Find(store.CachedComments(postID), func(cm models.Interaction) bool { return cm.ID == commentID }); !ok {
			b.fail(ctx, logger, c, "edit comment", feed.ErrUnknownComment)
			return
		}
		c.expect(pendingInput{kind: inputEditComment, source: source, postID: postID, commentID: commentID})
		b.sendMessage(c.id, "Send the new text of your comment.")
		return
	case "clk":
		liked := false
		for _, cm := range store.CachedComments(postID) {
			if cm.ID == commentID {
				liked = cm.IsLiked
			}
		}
		if liked {
			err = store.UnlikeComment(ctx, postID, commentID)
		} else {
			err = store.LikeComment(ctx, postID, commentID)
		}
	case "cdel":
		err = store.DeleteComment(ctx, postID, commentID)
	}
	if err != nil {
		b.fail(ctx, logger, c, "update comment", err)
		return
	}

	comments := store.CachedComments(postID)
	b.editMarkdown(c.id, messageID, formatComments(comments), commentsKeyboard(comments, source, postID, c.session.UserID()))
}

func (b *Bot) showMore(ctx context.Context, logger *zap.Logger, c *chat, source feed.Source) {
	store, err := c.loadedFeed(ctx, source)
	if err != nil {
		b.fail(ctx, logger, c, "load feed", err)
		return
	}

	added, err := store.More(ctx)
	if err != nil {
		b.fail(ctx, logger, c, "load more posts", err)
		return
	}
	if added == 0 {
		b.sendMessage(c.id, "That's everything.")
		return
	}

	posts := store.Posts()
	b.sendPosts(c, source, posts[len(posts)-added:])
	b.sendMarkdown(c.id, escapeMarkdown(fmt.Sprintf("Showing %d posts.", len(posts))), moreKeyboard(source))
}

func (b *Bot) handleConnectionAction(ctx context.Context, logger *zap.Logger, c *chat, messageID int, action string, args []string) {
	if len(args) != 1 {
		return
	}
	id, ok := parseID(args[0])
	if !ok {
		return
	}

	book, err := c.connections()
	if err != nil {
		b.fail(ctx, logger, c, "update connection", err)
		return
	}

	switch action {
	case "conn":
		err = book.Connect(ctx, id)
	case "acc":
		err = book.Accept(ctx, id)
	case "rjc":
		err = book.Reject(ctx, id)
	case "rm":
		err = book.Remove(ctx, id)
	}
	if err != nil {
		b.fail(ctx, logger, c, "update connection", err)
		return
	}

	b.renderBook(c, book, messageID)
}

func (b *Bot) handleAgentAction(ctx context.Context, logger *zap.Logger, c *chat, action string, args []string) {
	if len(args) != 1 {
		return
	}
	actionID, ok := parseID(args[0])
	if !ok {
		return
	}

	client, err := c.session.RequireAuth()
	if err != nil {
		b.fail(ctx, logger, c, "review agent action", err)
		return
	}

	if action == "ano" {
		if err := client.RejectAction(ctx, actionID); err != nil {
			b.fail(ctx, logger, c, "reject agent action", err)
			return
		}
		b.sendMessage(c.id, fmt.Sprintf("Action #%d rejected.", actionID))
		return
	}

	post, err := client.ApproveAction(ctx, actionID)
	if err != nil {
		b.fail(ctx, logger, c, "approve agent action", err)
		return
	}
	b.sendMessage(c.id, fmt.Sprintf("Action #%d approved.", actionID))
	b.sendPosts(c, feed.Source{Kind: feed.SourceMine}, []models.Post{*post})
}

func (b *Bot) renderStep(c *chat, w *onboarding.Wizard, messageID int) {
	if w.Step() == onboarding.StepTopics {
		c.expect(pendingInput{kind: inputTopics})
	}

	text, keyboard := formatStep(w)
	if messageID != 0 {
		b.editMarkdown(c.id, messageID, text, &keyboard)
		return
	}
	b.sendMarkdown(c.id, text, &keyboard)
}

func (b *Bot) handleOnboardingAction(ctx context.Context, logger *zap.Logger, c *chat, messageID int, args []string) string {
	w := c.onboarding()
	if w == nil || len(args) == 0 {
		return "Start again with /onboard"
	}

	value := ""
	if len(args) > 1 {
		value = args[1]
	}

	var err error
	switch args[0] {
	case "uc":
		err = w.SetUseCase(models.UseCase(value))
	case "freq":
		err = w.SetFrequency(models.PostingFrequency(value))
	case "style":
		err = w.SetStyle(models.CommunicationStyle(value))
	case "aut":
		var level int
		if _, scanErr := fmt.Sscanf(value, "%d", &level); scanErr != nil {
			return ""
		}
		err = w.SetAutonomy(level)
	case "rmtopic":
		var i int
		if _, scanErr := fmt.Sscanf(value, "%d", &i); scanErr == nil {
			if topics := w.Answers().TopicsOfInterest; i >= 0 && i < len(topics) {
				err = w.RemoveTopic(topics[i])
			}
		}
	case "ctx":
		c.expect(pendingInput{kind: inputContext})
		b.sendMessage(c.id, "Tell your agent a little about yourself.")
		return ""
	case "next":
		_, err = w.Next()
	case "back":
		if w.Back() {
			c.endOnboarding()
			b.editMarkdown(c.id, messageID, escapeMarkdown("Onboarding cancelled. Run /onboard to start over."), nil)
			return ""
		}
	case "submit":
		return b.submitOnboarding(ctx, logger, c, w, messageID)
	}

	if err != nil {
		return describe(err)
	}
	b.renderStep(c, w, messageID)
	return ""
}

func (b *Bot) submitOnboarding(ctx context.Context, logger *zap.Logger, c *chat, w *onboarding.Wizard, messageID int) string {
	b.editMarkdown(c.id, messageID, escapeMarkdown("Creating your agent…"), nil)

	agent, err := w.Submit(ctx)
	if err != nil {
		logger.Warn("Failed to create agent", zap.Error(err))
		b.renderStep(c, w, messageID)
		return describe(err)
	}

	c.endOnboarding()
	logger.Info("Agent created", zap.Int64("agent_id", agent.ID))
	b.editMarkdown(c.id, messageID, escapeMarkdown("Your agent is ready!")+"\n\n"+formatAgent(*agent), nil)
	return ""
}

func (b *Bot) handleInput(ctx context.Context, logger *zap.Logger, c *chat, input pendingInput, text string) {
	switch input.kind {
	case inputComment, inputEditPost, inputPublishDraft:
		b.handlePostInput(ctx, logger, c, input, text)

	case inputEditComment:
		b.handleCommentInput(ctx, logger, c, input, text)

	case inputTopics:
		w := c.onboarding()
		if w == nil || w.Step() != onboarding.StepTopics {
			b.sendMessage(c.id, "Use /help to see what I can do.")
			return
		}
		for _, topic := range agentcfg.SplitTopics(text) {
			if err := w.AddTopic(topic); err != nil {
				b.fail(ctx, logger, c, "add topic", err)
				return
			}
		}
		b.renderStep(c, w, 0)

	case inputContext:
		w := c.onboarding()
		if w == nil {
			b.sendMessage(c.id, "Use /help to see what I can do.")
			return
		}
		if err := w.SetContext(text); err != nil {
			b.fail(ctx, logger, c, "save context", err)
			return
		}
		b.renderStep(c, w, 0)
	}
}

func (b *Bot) handlePostInput(ctx context.Context, logger *zap.Logger, c *chat, input pendingInput, text string) {
	store, err := c.loadedFeed(ctx, input.source)
	if err != nil {
		b.fail(ctx, logger, c, "load feed", err)
		return
	}

	switch input.kind {
	case inputComment:
		if _, err := store.AddComment(ctx, input.postID, text); err != nil {
			b.fail(ctx, logger, c, "add comment", err)
			return
		}
		b.sendMessage(c.id, "Comment added.")
	case inputEditPost:
		if _, err := store.Edit(ctx, input.postID, text); err != nil {
			b.fail(ctx, logger, c, "edit post", err)
			return
		}
		b.sendMessage(c.id, "Post updated.")
	case inputPublishDraft:
		if _, err := store.EditAndPublish(ctx, input.postID, text); err != nil {
			b.fail(ctx, logger, c, "publish draft", err)
			return
		}
		b.sendMessage(c.id, "Published.")
	}

	if post, ok := store.Get(input.postID); ok {
		b.sendPosts(c, input.source, []models.Post{post})
	}
	b.reconcileElsewhere(ctx, logger, c, store, input.postID)
}

func (b *Bot) handleCommentInput(ctx context.Context, logger *zap.Logger, c *chat, input pendingInput, text string) {
	store, err := c.loadedFeed(ctx, input.source)
	if err != nil {
		b.fail(ctx, logger, c, "load feed", err)
		return
	}

	if _, err := store.EditComment(ctx, input.postID, input.commentID, text); err != nil {
		b.fail(ctx, logger, c, "edit comment", err)
		return
	}

	comments := store.CachedComments(input.postID)
	b.sendMarkdown(c.id, formatComments(comments), commentsKeyboard(comments, input.source, input.postID, c.session.UserID()))
}
