package usecase

import "context"

type IndexUC interface {
	CreateDocs(ctx context.Context, req *CreateDocsReq) (*CreateDocsRes, error)
	SearchSimilar(ctx context.Context, req *SearchReq) (*SearchRes, error)
}
