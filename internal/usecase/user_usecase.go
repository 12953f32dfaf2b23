package usecase

import (
	"context"
	"strings"
	"unicode/utf8"

	"univmarket/internal/domain/entity"
	"univmarket/internal/domain/repository"
	"univmarket/pkg/errors"
)

const (
	minNicknameLength = 2
	maxNicknameLength = 30
)

type UserUseCase struct {
	userRepo repository.UserRepository
}

func NewUserUseCase(userRepo repository.UserRepository) *UserUseCase {
	return &UserUseCase{
		userRepo: userRepo,
	}
}

type UpdateProfileInput struct {
	Nickname string
	Email    string
}

func (uc *UserUseCase) GetUserProfile(ctx context.Context, userID string) (*entity.User, error) {
	user, err := uc.userRepo.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, errors.CodeNotFound) {
			return nil, err
		}
		return nil, errors.Internal("Failed to get user", err)
	}
	return user, nil
}

// UpdateProfile sets the caller's nickname, creating the profile on first use. Nicknames
// are copied into chat rooms when they are opened.
func (uc *UserUseCase) UpdateProfile(ctx context.Context, userID string, input UpdateProfileInput) (*entity.User, error) {
	nickname := strings.TrimSpace(input.Nickname)
	if n := utf8.RuneCountInString(nickname); n < minNicknameLength || n > maxNicknameLength {
		return nil, errors.BadRequest("Nickname must be between 2 and 30 characters", nil)
	}

	user, err := uc.userRepo.GetByID(ctx, userID)
	if err != nil {
		if !errors.Is(err, errors.CodeNotFound) {
			return nil, errors.Internal("Failed to get user", err)
		}
		user = &entity.User{ID: userID, Nickname: nickname, Email: input.Email}
		if err := uc.userRepo.Create(ctx, user); err != nil {
			return nil, err
		}
		return user, nil
	}

	user.Nickname = nickname
	if input.Email != "" {
		user.Email = input.Email
	}
	if err := uc.userRepo.Update(ctx, user); err != nil {
		return nil, err
	}
	return user, nil
}
