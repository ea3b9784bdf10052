package apperr

import (
	"database/sql"
	"errors"
	"fmt"
	"testing"
)

func TestCodeOf(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
		want Code
	}{
		{name: "AppErrorはそのコードを返すこと", err: Conflict("USERNAME TAKEN"), want: CodeAlreadyExists},
		{name: "ラップされたAppErrorも判別できること", err: fmt.Errorf("rename: %w", Forbidden("x")), want: CodePermissionDenied},
		{name: "通常のエラーはINTERNALになること", err: sql.ErrConnDone, want: CodeInternal},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := CodeOf(tt.err); got != tt.want {
				t.Errorf("CodeOf() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestMessageOf(t *testing.T) {
	t.Parallel()

	t.Run("内部エラーの詳細は隠されること", func(t *testing.T) {
		t.Parallel()
		err := Internal(errors.New("no such table: users"))
		if got := MessageOf(err); got != "SERVER ERROR" {
			t.Errorf("MessageOf() = %q, want %q", got, "SERVER ERROR")
		}
		if !errors.Is(err, err.(*AppError).Cause) {
			t.Error("Causeまでアンラップできること")
		}
	})

	t.Run("分類済みのエラーはメッセージをそのまま返すこと", func(t *testing.T) {
		t.Parallel()
		if got := MessageOf(NotFound("USER NOT FOUND")); got != "USER NOT FOUND" {
			t.Errorf("MessageOf() = %q, want %q", got, "USER NOT FOUND")
		}
	})

	t.Run("素のエラーは固定文言になること", func(t *testing.T) {
		t.Parallel()
		if got := MessageOf(errors.New("secret detail")); got != "SERVER ERROR" {
			t.Errorf("MessageOf() = %q, want %q", got, "SERVER ERROR")
		}
	})
}

func TestAppErrorIs(t *testing.T) {
	t.Parallel()

	err := fmt.Errorf("wrap: %w", Conflict("USERNAME TAKEN"))
	if !errors.Is(err, Conflict("USERNAME TAKEN")) {
		t.Error("同じコードとメッセージのエラーと一致すること")
	}
	if !errors.Is(err, &AppError{Code: CodeAlreadyExists}) {
		t.Error("メッセージ未指定ならコードだけで一致すること")
	}
	if errors.Is(err, Forbidden("USERNAME TAKEN")) {
		t.Error("コードが異なるエラーとは一致しないこと")
	}
}
