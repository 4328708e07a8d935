package allowlist

// DefaultCommandPatterns is the stock rule set for common diagnostic and
// service-management commands. Installations are expected to tighten or
// replace it; it exists so a fresh config is useful without being open.
func DefaultCommandPatterns() []string {
	return []string{
		`^(sudo\s+)?systemctl\s+`,
		`^(sudo\s+)?service\s+`,
		`^(sudo\s+)?journalctl(\s|$)`,
		`^tail\s+-f\s+`,
		`^tail\s+-n\s+\d+\s+`,
		`^head\s+-n\s+\d+\s+`,
		`^cat\s+`,
		`^less\s+`,
		`^grep\s+`,
		`^rg\s+`,
		`^(sudo\s+)?apt(-get)?\s+`,
		`^(sudo\s+)?dpkg\s+`,
		`^ls(\s|$)`,
		`^pwd$`,
		`^whoami$`,
		`^id$`,
		`^df\s+`,
		`^du\s+`,
		`^mount(\s|$)`,
		`^umount(\s|$)`,
		`^ip\s+`,
		`^ifconfig`,
		`^netstat`,
		`^ss\s+`,
		`^(sudo\s+)?ufw\s+`,
		`^(sudo\s+)?iptables\s+`,
		`^curl\s+`,
		`^wget\s+`,
		`^dig\s+`,
		`^host\s+`,
		`^ping\s+`,
		`^traceroute\s+`,
		`^top$`,
		`^htop$`,
		`^ps\s+`,
		`^(sudo\s+)?kill`,
		`^(sudo\s+)?systemd-analyze`,
	}
}

// DefaultFilePatterns covers the system configuration trees a sysadmin
// agent most often needs to edit.
func DefaultFilePatterns() []string {
	return []string{
		`^/etc/.*`,
		`^/var/log/.*`,
		`^/usr/lib/systemd/system/.*`,
		`^/lib/systemd/system/.*`,
		`^/etc/ssh/.*`,
		`^/etc/network/.*`,
		`^/etc/sysctl\.conf$`,
	}
}

const DefaultMaxEditSizeKB = 64
