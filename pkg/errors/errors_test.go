package errors

import (
	"context"
	"testing"

	"github.com/haierkeys/doc-link-service/internal/domain"
	"github.com/haierkeys/doc-link-service/pkg/code"
	"github.com/haierkeys/doc-link-service/pkg/doclink"
	"github.com/haierkeys/doc-link-service/pkg/workerpool"

	pkgerrors "github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
)

func TestToCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want *code.Code
	}{
		{name: "nil", err: nil, want: code.Success},
		{name: "code passthrough", err: code.ErrorConversationForbidden, want: code.ErrorConversationForbidden},
		{name: "invalid input", err: pkgerrors.Wrap(doclink.ErrInvalidInput, "document_path is empty"), want: code.ErrorLinkInvalidInput},
		{name: "unparsable", err: pkgerrors.Wrap(doclink.ErrUnparsableCredential, "bad"), want: code.ErrorLinkUnparsable},
		{name: "signer", err: pkgerrors.Wrap(doclink.ErrSignerFailure, "no key"), want: code.ErrorLinkSigner},
		{name: "not found", err: domain.ErrConversationNotFound, want: code.ErrorConversationNotFound},
		{name: "queue full", err: workerpool.ErrWorkerPoolFull, want: code.ErrorTaskQueueFull},
		{name: "deadline", err: context.DeadlineExceeded, want: code.ErrorRequestTimeout},
		{name: "unknown", err: pkgerrors.New("boom"), want: code.Failed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ToCode(tt.err)
			assert.Equal(t, tt.want.Code(), got.Code())
			assert.Equal(t, tt.want.Status(), got.Status())
		})
	}
}

func TestToCode_DetailsDoNotLeakIntoRegisteredCode(t *testing.T) {
	_ = ToCode(pkgerrors.New("first"))
	assert.False(t, code.Failed.HaveDetails())
}

func TestIsInternal(t *testing.T) {
	assert.False(t, IsInternal(nil))
	assert.False(t, IsInternal(doclink.ErrInvalidInput))
	assert.False(t, IsInternal(code.ErrorConversationNotFound))
	assert.True(t, IsInternal(code.ErrorDBQuery.WithDetails("locked")))
	assert.True(t, IsInternal(doclink.ErrSignerFailure))
}
