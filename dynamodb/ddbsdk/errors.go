package ddbsdk

import (
	"errors"

	"github.com/acksell/tablekit/dynamodb/ddberrors"
	"github.com/acksell/tablekit/dynamodb/table"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

func isConditionFailed(err error) bool {
	var ccf *types.ConditionalCheckFailedException
	return errors.As(err, &ccf)
}

// transactionError converts a cancelled transaction into a
// *ddberrors.TransactionError. Other errors are returned as is.
func transactionError(err error) error {
	var canceled *types.TransactionCanceledException
	if !errors.As(err, &canceled) {
		return err
	}
	reasons := make([]string, 0, len(canceled.CancellationReasons))
	for _, r := range canceled.CancellationReasons {
		code := "None"
		if r.Code != nil {
			code = *r.Code
		}
		reasons = append(reasons, code)
	}
	return &ddberrors.TransactionError{Reasons: reasons, Cause: err}
}

func notFound(k table.Key) error {
	return &ddberrors.NotFoundError{Partition: k.Partition, Sort: k.Sort}
}

func alreadyExists(k table.Key) error {
	return &ddberrors.AlreadyExistsError{Partition: k.Partition, Sort: k.Sort}
}
