package service

import (
	"fmt"
	"log"

	"gopkg.in/gomail.v2"
	"zh.xyz/dv/console/config"
	"zh.xyz/dv/console/models"
)

// SendInstanceDownAlert 实例不可达告警邮件
func SendInstanceDownAlert(inst *models.RemoteInstance, reason string) {
	to := config.GlobalConfig.Health.AlertEmail
	if to == "" {
		return
	}

	subject := fmt.Sprintf("远程实例告警: %s 不可达", inst.Name)
	body := fmt.Sprintf(`
		<html>
		<body>
			<h2>远程实例健康告警</h2>
			<p>健康探测发现以下实例不可达：</p>
			<ul>
				<li>实例: %s (ID: %d)</li>
				<li>地址: %s:%s</li>
				<li>原因: %s</li>
			</ul>
			<p>请检查实例状态和网络连通性。</p>
		</body>
		</html>
	`, inst.Name, inst.ID, inst.Host, inst.Port, reason)

	if err := sendEmail(to, subject, body); err != nil {
		log.Printf("[邮件] 发送实例告警失败: %v", err)
	}
}

// SendSyncFailureReport 批量同步失败汇总邮件
func SendSyncFailureReport(results []SyncResult) {
	to := config.GlobalConfig.Health.AlertEmail
	if to == "" {
		return
	}

	items := ""
	for _, r := range results {
		if r.Success {
			continue
		}
		items += fmt.Sprintf("<li>实例 %s (ID: %d): %s</li>", r.Name, r.InstanceID, r.Message)
	}
	if items == "" {
		return
	}

	subject := "租户缓存同步失败汇总"
	body := fmt.Sprintf(`
		<html>
		<body>
			<h2>租户缓存同步失败汇总</h2>
			<p>以下实例在本轮同步中失败：</p>
			<ul>%s</ul>
			<p>失败的实例会在下一轮同步中重试。</p>
		</body>
		</html>
	`, items)

	if err := sendEmail(to, subject, body); err != nil {
		log.Printf("[邮件] 发送同步失败汇总失败: %v", err)
	}
}

// sendEmail 发送邮件
func sendEmail(to, subject, body string) error {
	cfg := config.GlobalConfig.Email

	m := gomail.NewMessage()
	m.SetHeader("From", cfg.From)
	m.SetHeader("To", to)
	m.SetHeader("Subject", subject)
	m.SetBody("text/html", body)

	d := gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password)

	return d.DialAndSend(m)
}
