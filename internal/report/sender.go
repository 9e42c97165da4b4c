package report

import (
	"context"
	"sync/atomic"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/ariefcatur/go-commerce-backend/internal/notify"
)

type Mailer interface {
	Send(ctx context.Context, e notify.Email) (string, error)
}

type BulkResult struct {
	Successful int `json:"successful"`
	Failed     int `json:"failed"`
	Total      int `json:"total"`
}

type Sender struct {
	Generator *Generator
	Mailer    Mailer
	App       string
	Log       *logrus.Entry
}

func (s *Sender) email(to string, r *Report) (notify.Email, error) {
	html, err := RenderHTML(s.App, r)
	if err != nil {
		return notify.Email{}, err
	}
	return notify.Email{To: to, Subject: Subject(r, s.Generator.now()), HTML: html}, nil
}

func (s *Sender) Send(ctx context.Context, to string, days int) error {
	r, err := s.Generator.Generate(days)
	if err != nil {
		return err
	}
	return s.send(ctx, to, r)
}

func (s *Sender) send(ctx context.Context, to string, r *Report) error {
	e, err := s.email(to, r)
	if err != nil {
		return err
	}
	if _, err := s.Mailer.Send(ctx, e); err != nil {
		s.Log.WithError(err).WithField("to", to).Error("send log report")
		return err
	}
	s.Log.WithField("to", to).Info("log report sent")
	return nil
}

// SendBulk builds one report and mails it to every recipient. A failed
// recipient does not stop the others.
func (s *Sender) SendBulk(ctx context.Context, recipients []string, days int) (BulkResult, error) {
	res := BulkResult{Total: len(recipients)}
	r, err := s.Generator.Generate(days)
	if err != nil {
		return res, err
	}
	var ok, failed atomic.Int64
	var g errgroup.Group
	g.SetLimit(4)
	for _, to := range recipients {
		g.Go(func() error {
			if err := s.send(ctx, to, r); err != nil {
				failed.Add(1)
				return nil
			}
			ok.Add(1)
			return nil
		})
	}
	_ = g.Wait()
	res.Successful, res.Failed = int(ok.Load()), int(failed.Load())
	s.Log.WithFields(logrus.Fields{"successful": res.Successful, "failed": res.Failed}).Info("bulk log reports sent")
	return res, nil
}
