package utils

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log"
	"strconv"
	"strings"
	"time"
)

// VerifySimpleSignature 校验简单HMAC签名（审计事件推送使用）
// 签名 = HMAC-SHA256(原始请求体, 密钥)，十六进制编码
// 未配置密钥时跳过校验并告警，仅用于开发环境
func VerifySimpleSignature(body []byte, header string, secret string) bool {
	if secret == "" {
		log.Printf("[签名] 未配置审计事件密钥，跳过签名校验（生产环境禁止）")
		return true
	}
	if header == "" {
		return false
	}

	expected := ComputeSimpleSignature(body, secret)
	// 必须使用恒定时间比较，避免时序侧信道
	return hmac.Equal([]byte(expected), []byte(header))
}

// ComputeSimpleSignature 计算简单HMAC签名（供远端和测试使用）
func ComputeSimpleSignature(body []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifyTimestampedSignature 校验带时间戳的HMAC签名（命令回调使用）
// 签名头格式: "<unix时间戳>.<十六进制签名>"
// 签名 = HMAC-SHA256(时间戳 + "." + 原始请求体, 密钥)
// 返回是否通过以及拒绝原因（原因只写日志，不回传给调用方）
func VerifyTimestampedSignature(body []byte, header string, secret string, tolerance time.Duration) (bool, string) {
	parts := strings.Split(header, ".")
	if len(parts) != 2 {
		return false, "invalid format"
	}

	ts, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		return false, "invalid format"
	}

	// 时间戳新鲜度检查，防御重放
	skew := time.Now().Unix() - ts
	if skew < 0 {
		skew = -skew
	}
	if skew > int64(tolerance.Seconds()) {
		return false, "timestamp expired"
	}

	// 回调签名没有开放兜底，未配置密钥直接拒绝
	if secret == "" {
		return false, "not configured"
	}

	expected := computeTimestampedHMAC(body, parts[0], secret)
	if !hmac.Equal([]byte(expected), []byte(parts[1])) {
		return false, "signature mismatch"
	}

	return true, ""
}

// ComputeTimestampedSignature 生成完整的带时间戳签名头（供远端和测试使用）
func ComputeTimestampedSignature(body []byte, secret string, ts time.Time) string {
	tsStr := strconv.FormatInt(ts.Unix(), 10)
	return fmt.Sprintf("%s.%s", tsStr, computeTimestampedHMAC(body, tsStr, secret))
}

func computeTimestampedHMAC(body []byte, tsStr string, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(tsStr))
	mac.Write([]byte("."))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}
