package service

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/zap"

	"github.com/voxline/voxline-agents/internal/domain"
	"github.com/voxline/voxline-agents/internal/repository"
)

// FolderService is thin grouping CRUD around agents.
type FolderService struct {
	folders   repository.FolderRepository
	snowflake *snowflake.Node
	logger    *zap.Logger
}

func NewFolderService(folders repository.FolderRepository, node *snowflake.Node, logger *zap.Logger) *FolderService {
	return &FolderService{folders: folders, snowflake: node, logger: logger}
}

func (s *FolderService) Create(ctx context.Context, p domain.Principal, name string) (domain.Folder, error) {
	trimmed := strings.TrimSpace(name)
	if trimmed == "" {
		return domain.Folder{}, domain.NewValidation("name is required")
	}
	folder, err := s.folders.Create(ctx, domain.Folder{
		ID:       s.snowflake.Generate().Int64(),
		TenantID: p.TenantID,
		Name:     trimmed,
	})
	if err != nil {
		return domain.Folder{}, err
	}
	audit(s.logger, "folder.created", "tenant_id", p.TenantID, "folder_id", folder.ID)
	return folder, nil
}

func (s *FolderService) List(ctx context.Context, p domain.Principal) ([]domain.Folder, error) {
	return s.folders.List(ctx, p.TenantID)
}

func (s *FolderService) Delete(ctx context.Context, p domain.Principal, id int64) error {
	return s.folders.Delete(ctx, p.TenantID, id)
}
