package mailer

import (
	"bytes"
	"fmt"
	"html/template"
)

var intakeTemplate = template.Must(template.New("intake").Parse(`<!DOCTYPE html>
<html>
<head>
  <meta charset="utf-8" />
  <meta name="viewport" content="width=device-width, initial-scale=1.0" />
  <title>Health Assessment Request - Nirog AI</title>
</head>
<body style="margin:0;padding:0;background:#f0f9ff;font-family:'Segoe UI',Arial,sans-serif;">
  <table width="100%" cellpadding="0" cellspacing="0" style="background:#f0f9ff;padding:40px 0;">
    <tr><td align="center">
      <table width="600" cellpadding="0" cellspacing="0" style="background:#ffffff;border-radius:16px;overflow:hidden;max-width:600px;width:100%;">
        <tr>
          <td style="background:linear-gradient(135deg,#0ea5e9,#14b8a6);padding:36px 40px;text-align:center;">
            <h1 style="margin:0;color:#ffffff;font-size:28px;font-weight:700;">Nirog AI</h1>
            <p style="margin:8px 0 0;color:rgba(255,255,255,0.85);font-size:14px;">AI-Powered Clinical Assessment</p>
          </td>
        </tr>
        <tr>
          <td style="padding:40px;">
            <p style="margin:0 0 12px;color:#64748b;font-size:14px;text-transform:uppercase;letter-spacing:1px;font-weight:600;">Health Assessment Request</p>
            <h2 style="margin:0 0 20px;color:#0f172a;font-size:24px;font-weight:700;">Hello, {{.PatientName}}</h2>
            <p style="color:#475569;font-size:16px;line-height:1.7;margin:0 0 24px;">
              Your doctor, <strong style="color:#0f172a;">{{.DoctorName}}</strong>, has requested a quick health assessment using the <strong>Nirog AI</strong> platform.
            </p>
            <p style="color:#475569;font-size:16px;line-height:1.7;margin:0 0 32px;">
              Please take a few minutes to fill in your current symptoms and health information. Your responses will help generate a detailed AI report that your doctor can review before your appointment.
            </p>
            <table width="100%" cellpadding="0" cellspacing="0">
              <tr><td align="center">
                <a href="{{.URL}}" style="display:inline-block;background:linear-gradient(135deg,#0ea5e9,#14b8a6);color:#ffffff;text-decoration:none;padding:16px 48px;border-radius:12px;font-size:17px;font-weight:700;">
                  Fill My Health Assessment &rarr;
                </a>
              </td></tr>
            </table>
            <p style="color:#94a3b8;font-size:13px;text-align:center;margin:24px 0 0;">
              Or copy this link into your browser:<br/>
              <a href="{{.URL}}" style="color:#0ea5e9;word-break:break-all;">{{.URL}}</a>
            </p>
            <hr style="border:none;border-top:1px solid #e2e8f0;margin:32px 0;" />
            <table width="100%" cellpadding="0" cellspacing="0" style="background:#f8fafc;border-radius:12px;border:1px solid #e2e8f0;">
              <tr><td style="padding:20px 24px;">
                <p style="margin:0 0 8px;font-weight:700;color:#0f172a;font-size:14px;">What to expect</p>
                <ul style="margin:0;padding:0 0 0 18px;color:#64748b;font-size:14px;line-height:1.8;">
                  <li>The form takes about 3 to 5 minutes to complete</li>
                  <li>No account or password required</li>
                  <li>Your information is used only for this assessment</li>
                  <li>This link expires in {{.ExpiryDays}} days</li>
                </ul>
              </td></tr>
            </table>
          </td>
        </tr>
        <tr>
          <td style="background:#f8fafc;padding:24px 40px;border-top:1px solid #e2e8f0;text-align:center;">
            <p style="margin:0;color:#94a3b8;font-size:12px;">
              This email was sent by <strong>Nirog AI</strong> on behalf of your healthcare provider.<br/>
              If you did not expect this email, you can safely ignore it.
            </p>
          </td>
        </tr>
      </table>
    </td></tr>
  </table>
</body>
</html>
`))

type intakeData struct {
	PatientName string
	DoctorName  string
	URL         string
	ExpiryDays  int
}

// IntakeEmail renders the intake invitation for one patient.
func IntakeEmail(toName, toEmail, doctorName, url string, expiryDays int) (Message, error) {
	var buf bytes.Buffer
	err := intakeTemplate.Execute(&buf, intakeData{
		PatientName: toName,
		DoctorName:  doctorName,
		URL:         url,
		ExpiryDays:  expiryDays,
	})
	if err != nil {
		return Message{}, err
	}
	return Message{
		ToName:  toName,
		ToEmail: toEmail,
		Subject: fmt.Sprintf("%s has requested your health assessment - Nirog AI", doctorName),
		HTML:    buf.String(),
	}, nil
}
