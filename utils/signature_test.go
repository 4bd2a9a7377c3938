package utils

import (
	"strconv"
	"strings"
	"testing"
	"time"
)

func TestVerifySimpleSignature(t *testing.T) {
	body := []byte(`{"event_type":"audit"}`)
	secret := "test-secret"

	sig := ComputeSimpleSignature(body, secret)
	if !VerifySimpleSignature(body, sig, secret) {
		t.Error("正确的签名应该通过校验")
	}

	// 请求体被篡改后签名必须失效
	tampered := []byte(`{"event_type":"audit" }`)
	if VerifySimpleSignature(tampered, sig, secret) {
		t.Error("篡改请求体后签名不应通过")
	}

	if VerifySimpleSignature(body, sig, "other-secret") {
		t.Error("密钥不一致时签名不应通过")
	}

	if VerifySimpleSignature(body, "", secret) {
		t.Error("缺少签名头时不应通过")
	}
}

func TestVerifySimpleSignatureNoSecret(t *testing.T) {
	// 未配置密钥时跳过校验（开发模式兜底）
	if !VerifySimpleSignature([]byte("anything"), "whatever", "") {
		t.Error("未配置密钥时应跳过校验")
	}
	if !VerifySimpleSignature([]byte("anything"), "", "") {
		t.Error("未配置密钥时缺少签名头也应放行")
	}
}

func TestVerifyTimestampedSignature(t *testing.T) {
	body := []byte(`{"execution_id":42,"status":"running"}`)
	secret := "callback-secret"
	tolerance := 300 * time.Second

	header := ComputeTimestampedSignature(body, secret, time.Now())
	ok, reason := VerifyTimestampedSignature(body, header, secret, tolerance)
	if !ok {
		t.Errorf("正确的签名应该通过校验, 原因: %s", reason)
	}

	// 请求体被篡改后签名必须失效
	ok, reason = VerifyTimestampedSignature([]byte(`{"execution_id":43}`), header, secret, tolerance)
	if ok {
		t.Error("篡改请求体后签名不应通过")
	}
	if reason != "signature mismatch" {
		t.Errorf("期望原因 signature mismatch, 实际 %q", reason)
	}
}

func TestVerifyTimestampedSignatureExpired(t *testing.T) {
	body := []byte(`{"execution_id":42}`)
	secret := "callback-secret"

	// 签名本身正确，但时间戳超出容忍窗口
	header := ComputeTimestampedSignature(body, secret, time.Now().Add(-10*time.Minute))
	ok, reason := VerifyTimestampedSignature(body, header, secret, 300*time.Second)
	if ok {
		t.Error("过期时间戳不应通过")
	}
	if reason != "timestamp expired" {
		t.Errorf("期望原因 timestamp expired, 实际 %q", reason)
	}

	// 未来的时间戳同样拒绝
	header = ComputeTimestampedSignature(body, secret, time.Now().Add(10*time.Minute))
	ok, reason = VerifyTimestampedSignature(body, header, secret, 300*time.Second)
	if ok {
		t.Error("未来时间戳不应通过")
	}
	if reason != "timestamp expired" {
		t.Errorf("期望原因 timestamp expired, 实际 %q", reason)
	}
}

func TestVerifyTimestampedSignatureFormat(t *testing.T) {
	body := []byte(`{}`)
	secret := "callback-secret"
	tolerance := 300 * time.Second

	cases := []string{
		"",
		"no-dot-at-all",
		"a.b.c",
		"not-a-number.abcdef",
	}
	for _, header := range cases {
		ok, reason := VerifyTimestampedSignature(body, header, secret, tolerance)
		if ok {
			t.Errorf("格式错误的签名头 %q 不应通过", header)
		}
		if reason != "invalid format" {
			t.Errorf("签名头 %q 期望原因 invalid format, 实际 %q", header, reason)
		}
	}
}

func TestVerifyTimestampedSignatureNoSecret(t *testing.T) {
	// 与简单方案不同，回调签名未配置密钥时必须拒绝
	body := []byte(`{}`)
	header := ComputeTimestampedSignature(body, "any", time.Now())
	ok, reason := VerifyTimestampedSignature(body, header, "", 300*time.Second)
	if ok {
		t.Error("未配置密钥时应拒绝")
	}
	if reason != "not configured" {
		t.Errorf("期望原因 not configured, 实际 %q", reason)
	}

	// 密钥检查排在格式和新鲜度之后：格式错误的签名头报invalid format
	ok, reason = VerifyTimestampedSignature(body, "garbage", "", 300*time.Second)
	if ok {
		t.Error("格式错误的签名头不应通过")
	}
	if reason != "invalid format" {
		t.Errorf("未配置密钥时格式检查应先生效, 期望 invalid format, 实际 %q", reason)
	}

	// 过期时间戳同理
	header = ComputeTimestampedSignature(body, "any", time.Now().Add(-time.Hour))
	ok, reason = VerifyTimestampedSignature(body, header, "", 300*time.Second)
	if ok {
		t.Error("过期签名头不应通过")
	}
	if reason != "timestamp expired" {
		t.Errorf("未配置密钥时新鲜度检查应先生效, 期望 timestamp expired, 实际 %q", reason)
	}
}

func TestComputeTimestampedSignatureHeader(t *testing.T) {
	now := time.Now()
	header := ComputeTimestampedSignature([]byte("body"), "secret", now)

	parts := strings.Split(header, ".")
	if len(parts) != 2 {
		t.Fatalf("签名头应为两段, 实际: %q", header)
	}
	ts, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil || ts != now.Unix() {
		t.Errorf("签名头时间戳错误: %q", parts[0])
	}
}
