package service

import (
	"context"

	"Green_Community/internal/event"
	"Green_Community/internal/model"
	"Green_Community/internal/pkg"
	"Green_Community/internal/repository/mysql"

	"go.uber.org/zap"
)

// Notifier 通知申请人入会结果
type Notifier struct {
	users       *mysql.UserRepository
	communities *mysql.CommunityRepository
	mailer      *pkg.Mailer
	logger      *zap.Logger
}

func NewNotifier(users *mysql.UserRepository, communities *mysql.CommunityRepository, mailer *pkg.Mailer, logger *zap.Logger) *Notifier {
	return &Notifier{users: users, communities: communities, mailer: mailer, logger: logger.Named("notifier")}
}

func (n *Notifier) HandleResolved(ctx context.Context, ev event.Event) error {
	var p event.MembershipResolvedPayload
	if err := ev.Decode(&p); err != nil {
		return err
	}
	user, err := n.users.FindByID(ctx, p.UserID)
	if err != nil {
		return err
	}
	c, err := n.communities.FindByID(ctx, p.CommunityID)
	if err != nil {
		return err
	}

	approved := p.Status == model.RequestApproved
	if !n.mailer.Enabled() {
		n.logger.Info("membership decision",
			zap.Uint64("request_id", p.RequestID),
			zap.Uint64("user_id", p.UserID),
			zap.String("community", c.Name),
			zap.String("status", p.Status),
		)
		return nil
	}
	return n.mailer.Send(user.Email, "Your community join request", pkg.MembershipDecisionHTML(user.Username, c.Name, approved))
}
