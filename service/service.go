// Package service is the exposed contract: create content for an owner and
// list an owner's content. Transports (see httpapi) are thin bindings over it.
package service

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/rs/zerolog"

	"xdao.co/postledger/authorizer"
	"xdao.co/postledger/model"
	"xdao.co/postledger/resolver"
)

// MaxLimit caps the page size a caller may ask for.
const MaxLimit = 1000

type CreateRequest struct {
	Body      json.RawMessage
	Signature string
	Address   string
}

type Service struct {
	auth   *authorizer.Authorizer
	res    *resolver.Pipeline
	logger zerolog.Logger
}

func New(auth *authorizer.Authorizer, res *resolver.Pipeline) (*Service, error) {
	if auth == nil || res == nil {
		return nil, errors.New("service: authorizer and resolver are required")
	}
	return &Service{auth: auth, res: res, logger: zerolog.Nop()}, nil
}

func (s *Service) SetLogger(logger zerolog.Logger) {
	s.logger = logger
}

// CreateContent commits req.Body for req.Address.
func (s *Service) CreateContent(ctx context.Context, req CreateRequest) (*model.Item, error) {
	if len(req.Body) == 0 {
		return nil, model.NewError(model.ErrInvalidRequest, "content is required")
	}
	return s.auth.Commit(ctx, req.Body, req.Signature, req.Address)
}

// ListContent resolves the owner's full list, then pages over it. Total is
// the length of the resolved list; placeholders count.
func (s *Service) ListContent(ctx context.Context, owner string, offset, limit int) (*model.Page, error) {
	if limit > MaxLimit {
		limit = MaxLimit
	}
	if offset < 0 || limit < 0 {
		_, err := model.Paginate(nil, offset, limit)
		return nil, err
	}
	res, err := s.res.Resolve(ctx, owner)
	if err != nil {
		return nil, err
	}
	items, err := model.Paginate(res.Items, offset, limit)
	if err != nil {
		return nil, err
	}
	s.logger.Debug().
		Str("owner", res.Owner).
		Str("source", string(res.Source)).
		Int("total", len(res.Items)).
		Int("returned", len(items)).
		Msg("list resolved")
	return &model.Page{
		Owner:   res.Owner,
		Items:   items,
		Total:   len(res.Items),
		Offset:  offset,
		Limit:   limit,
		HasMore: offset+len(items) < len(res.Items),
		Source:  res.Source,
	}, nil
}
