package grpcclient

import (
	"context"
	"fmt"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	grpchandler "github.com/Xausdorf/vaultpay/internal/delivery/grpc"
	"github.com/Xausdorf/vaultpay/internal/usecase/transfer"
)

type TransferRequest struct {
	SenderID       string
	Receiver       string
	Amount         string
	IdempotencyKey string
}

type TransferResult struct {
	TransactionID    string
	NewSenderBalance string
	Message          string
	Replayed         bool
}

type Transaction struct {
	TransactionID string
	Direction     string
	Counterparty  string
	Amount        string
	Status        string
	CreatedAt     time.Time
}

type Client struct {
	conn *grpc.ClientConn
}

func NewClient(addr string, opts ...grpc.DialOption) (*Client, error) {
	opts = append([]grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}, opts...)
	conn, err := grpc.NewClient(addr, opts...)
	if err != nil {
		return nil, err
	}
	return &Client{conn: conn}, nil
}

func (c *Client) Close() error {
	return c.conn.Close()
}

// Transfer returns a *transfer.Error carrying the server's error kind when the call fails.
func (c *Client) Transfer(ctx context.Context, req TransferRequest) (*TransferResult, error) {
	in, err := structpb.NewStruct(map[string]any{
		"sender_id":       req.SenderID,
		"receiver":        req.Receiver,
		"amount":          req.Amount,
		"idempotency_key": req.IdempotencyKey,
	})
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}

	var header, trailer metadata.MD
	out := new(structpb.Struct)
	if err := c.conn.Invoke(ctx, grpchandler.FullMethodTransfer, in, out,
		grpc.Header(&header), grpc.Trailer(&trailer)); err != nil {
		return nil, remoteError(err, trailer)
	}

	fields := out.GetFields()
	return &TransferResult{
		TransactionID:    fields["transactionId"].GetStringValue(),
		NewSenderBalance: fields["newSenderBalance"].GetStringValue(),
		Message:          fields["message"].GetStringValue(),
		Replayed:         len(header.Get(grpchandler.ReplayedHeader)) > 0,
	}, nil
}

func (c *Client) ListTransactions(ctx context.Context, accountID string, limit int) ([]Transaction, error) {
	in, err := structpb.NewStruct(map[string]any{
		"account_id": accountID,
		"limit":      limit,
	})
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}

	var trailer metadata.MD
	out := new(structpb.Struct)
	if err := c.conn.Invoke(ctx, grpchandler.FullMethodListTransactions, in, out, grpc.Trailer(&trailer)); err != nil {
		return nil, remoteError(err, trailer)
	}

	values := out.GetFields()["transactions"].GetListValue().GetValues()
	txns := make([]Transaction, 0, len(values))
	for _, v := range values {
		f := v.GetStructValue().GetFields()
		createdAt, _ := time.Parse(time.RFC3339Nano, f["created_at"].GetStringValue())
		txns = append(txns, Transaction{
			TransactionID: f["transaction_id"].GetStringValue(),
			Direction:     f["direction"].GetStringValue(),
			Counterparty:  f["counterparty"].GetStringValue(),
			Amount:        f["amount"].GetStringValue(),
			Status:        f["status"].GetStringValue(),
			CreatedAt:     createdAt,
		})
	}
	return txns, nil
}

func remoteError(err error, trailer metadata.MD) error {
	st, ok := status.FromError(err)
	if !ok {
		return err
	}

	kind := transfer.KindInternal
	if v := trailer.Get(grpchandler.ErrorKindTrailer); len(v) > 0 {
		kind = transfer.Kind(v[0])
	} else if st.Code() == codes.Unavailable || st.Code() == codes.DeadlineExceeded {
		kind = transfer.KindTransient
	}
	return &transfer.Error{Kind: kind, Message: st.Message(), Err: err}
}
