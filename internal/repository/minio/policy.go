package minio

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/minio/minio-go/v7/pkg/policy"
)

const policyVersion = "2012-10-17"

// withPublicRead открывает анонимное чтение {bucket}/{prefix}/* поверх текущей политики бакета.
// Остальные утверждения сохраняются. changed=false, если чтение уже открыто (read-only или read-write).
func withPublicRead(current, bucket, prefix string) (string, bool, error) {
	doc := policy.BucketAccessPolicy{Version: policyVersion}
	if strings.TrimSpace(current) != "" {
		if err := json.Unmarshal([]byte(current), &doc); err != nil {
			return "", false, fmt.Errorf("parse bucket policy: %w", err)
		}
	}

	objectPrefix := strings.Trim(prefix, "/") + "/"

	switch policy.GetPolicy(doc.Statements, bucket, objectPrefix) {
	case policy.BucketPolicyReadOnly, policy.BucketPolicyReadWrite:
		return current, false, nil
	}

	doc.Statements = policy.SetPolicy(doc.Statements, policy.BucketPolicyReadOnly, bucket, objectPrefix)

	out, err := json.Marshal(doc)
	if err != nil {
		return "", false, err
	}

	return string(out), true, nil
}
